package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Funnel    FunnelConfig    `yaml:"funnel" mapstructure:"funnel"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Health    HealthConfig    `yaml:"health" mapstructure:"health"`
	Incident  IncidentConfig  `yaml:"incident" mapstructure:"incident"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for the reply advisor.
// An empty key switches the advisor to the keyword classifier.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// FunnelConfig configures the lifecycle orchestrator.
type FunnelConfig struct {
	Audience        string `yaml:"audience" mapstructure:"audience"`
	CountryCode     string `yaml:"country_code" mapstructure:"country_code"`
	Region          string `yaml:"region" mapstructure:"region"`
	UnsubscribeBase string `yaml:"unsubscribe_base" mapstructure:"unsubscribe_base"`
	AllowRelaxedICP bool   `yaml:"allow_relaxed_icp" mapstructure:"allow_relaxed_icp"`
	BatchLimit      int    `yaml:"batch_limit" mapstructure:"batch_limit"`
	SweepDays       int    `yaml:"sweep_days" mapstructure:"sweep_days"`
}

// PricingConfig holds the adaptive price ladder parameters.
type PricingConfig struct {
	BaseFull   int `yaml:"base_full" mapstructure:"base_full"`
	BaseSimple int `yaml:"base_simple" mapstructure:"base_simple"`
	Step       int `yaml:"step" mapstructure:"step"`
	WindowSize int `yaml:"window_size" mapstructure:"window_size"`
}

// HealthConfig holds channel pause thresholds and daily caps.
type HealthConfig struct {
	EmailComplaintRate float64 `yaml:"email_complaint_rate" mapstructure:"email_complaint_rate"`
	EmailBounceRate    float64 `yaml:"email_bounce_rate" mapstructure:"email_bounce_rate"`
	WhatsAppFailRate   float64 `yaml:"whatsapp_fail_rate" mapstructure:"whatsapp_fail_rate"`
	ScrapeErrorStreak  int     `yaml:"scrape_error_streak" mapstructure:"scrape_error_streak"`
	ScrapeUnstableRuns int     `yaml:"scrape_unstable_runs" mapstructure:"scrape_unstable_runs"`
	CooldownHours      int     `yaml:"cooldown_hours" mapstructure:"cooldown_hours"`
	SafeModeThreshold  int     `yaml:"safe_mode_threshold" mapstructure:"safe_mode_threshold"`
	EmailDailyCap      int     `yaml:"email_daily_cap" mapstructure:"email_daily_cap"`
	EmailDailyFloor    int     `yaml:"email_daily_floor" mapstructure:"email_daily_floor"`
	WhatsAppDailyCap   int     `yaml:"whatsapp_daily_cap" mapstructure:"whatsapp_daily_cap"`
}

// IncidentConfig configures incident fingerprinting and reports.
type IncidentConfig struct {
	WindowMinutes int    `yaml:"window_minutes" mapstructure:"window_minutes"`
	ReportDir     string `yaml:"report_dir" mapstructure:"report_dir"`
}

// EnrichConfig configures website contact enrichment.
type EnrichConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ExportConfig configures lead export.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "outreach.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("funnel.country_code", "BR")
	v.SetDefault("funnel.region", "BR")
	v.SetDefault("funnel.batch_limit", 100)
	v.SetDefault("funnel.sweep_days", 7)
	v.SetDefault("pricing.base_full", 200)
	v.SetDefault("pricing.base_simple", 100)
	v.SetDefault("pricing.step", 100)
	v.SetDefault("pricing.window_size", 10)
	v.SetDefault("health.email_complaint_rate", 0.003)
	v.SetDefault("health.email_bounce_rate", 0.05)
	v.SetDefault("health.whatsapp_fail_rate", 0.10)
	v.SetDefault("health.scrape_error_streak", 3)
	v.SetDefault("health.scrape_unstable_runs", 2)
	v.SetDefault("health.cooldown_hours", 12)
	v.SetDefault("health.safe_mode_threshold", 2)
	v.SetDefault("health.email_daily_cap", 0)
	v.SetDefault("health.email_daily_floor", 0)
	v.SetDefault("health.whatsapp_daily_cap", 40)
	v.SetDefault("incident.window_minutes", 15)
	v.SetDefault("incident.report_dir", "reports")
	v.SetDefault("enrich.timeout_secs", 15)
	v.SetDefault("enrich.concurrency", 4)
	v.SetDefault("enrich.rate_per_sec", 2.0)
	v.SetDefault("export.dir", ".")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
