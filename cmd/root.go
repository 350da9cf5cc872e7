package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/internal/funnel"
	"github.com/sells-group/outreach-cli/internal/health"
	"github.com/sells-group/outreach-cli/internal/incident"
	"github.com/sells-group/outreach-cli/internal/outreach"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "outreach-cli",
	Short: "Cold-outreach funnel control plane",
	Long:  "Scrapes local-business leads, runs the consent-first outreach funnel with adaptive pricing, channel health pausing, and incident escalation.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// funnelConfig maps the loaded configuration onto the runner's knobs.
func funnelConfig() funnel.Config {
	return funnel.Config{
		Audience:        cfg.Funnel.Audience,
		CountryCode:     cfg.Funnel.CountryCode,
		Region:          cfg.Funnel.Region,
		UnsubscribeBase: cfg.Funnel.UnsubscribeBase,
		AllowRelaxedICP: cfg.Funnel.AllowRelaxedICP,
		BatchLimit:      cfg.Funnel.BatchLimit,
		SweepAfter:      time.Duration(cfg.Funnel.SweepDays) * 24 * time.Hour,
		IncidentDir:     cfg.Incident.ReportDir,
	}
}

func healthThresholds() health.Thresholds {
	return health.Thresholds{
		EmailComplaintRate: cfg.Health.EmailComplaintRate,
		EmailBounceRate:    cfg.Health.EmailBounceRate,
		WhatsAppFailRate:   cfg.Health.WhatsAppFailRate,
		ScrapeErrorStreak:  cfg.Health.ScrapeErrorStreak,
		ScrapeUnstableRuns: cfg.Health.ScrapeUnstableRuns,
		Cooldown:           time.Duration(cfg.Health.CooldownHours) * time.Hour,
		SafeModeThreshold:  cfg.Health.SafeModeThreshold,
		EmailDailyCap:      cfg.Health.EmailDailyCap,
		EmailDailyFloor:    cfg.Health.EmailDailyFloor,
		WhatsAppDailyCap:   cfg.Health.WhatsAppDailyCap,
	}
}

// initRunner builds the funnel runner over an opened store. Transport,
// scraper, demo, and payment collaborators are not bundled with the
// CLI; their slots stay nil and affected sends log
// client_not_configured.
func initRunner(st storeHandle) *funnel.Runner {
	return funnel.NewRunner(funnel.Deps{
		Store:     st,
		Health:    health.NewController(st, healthThresholds()),
		Incidents: incident.NewEngine(st, time.Duration(cfg.Incident.WindowMinutes)*time.Minute),
		Enricher: enrich.NewEnricher(enrich.Options{
			Timeout:     time.Duration(cfg.Enrich.TimeoutSecs) * time.Second,
			Concurrency: cfg.Enrich.Concurrency,
			RatePerSec:  cfg.Enrich.RatePerSec,
		}),
		Advisor: outreach.NewAdvisor(cfg.Anthropic.Key, cfg.Anthropic.Model),
	}, funnelConfig())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
