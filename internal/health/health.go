// Package health guards the outbound channels. Each channel pauses
// itself when its daily delivery metrics cross a threshold, sits out a
// cooldown, and resumes lazily on the next gate check. When two of the
// three watched channels are paused at once the whole funnel drops
// into global safe mode.
package health

import (
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Pause reasons recorded on channel status rows.
const (
	ReasonComplaintRate = "complaint_rate"
	ReasonBounceRate    = "bounce_rate"
	ReasonWAFailRate    = "wa_fail_rate"
	ReasonUnstableRuns  = "unstable_runs"
	ReasonErrorStreak   = "error_streak"
)

// Thresholds holds the trip points for the pause predicates.
type Thresholds struct {
	EmailComplaintRate float64       `yaml:"email_complaint_rate" mapstructure:"email_complaint_rate"`
	EmailBounceRate    float64       `yaml:"email_bounce_rate" mapstructure:"email_bounce_rate"`
	WhatsAppFailRate   float64       `yaml:"whatsapp_fail_rate" mapstructure:"whatsapp_fail_rate"`
	ScrapeErrorStreak  int           `yaml:"scrape_error_streak" mapstructure:"scrape_error_streak"`
	ScrapeUnstableRuns int           `yaml:"scrape_unstable_runs" mapstructure:"scrape_unstable_runs"`
	Cooldown           time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
	SafeModeThreshold  int           `yaml:"safe_mode_threshold" mapstructure:"safe_mode_threshold"`
	EmailDailyCap      int           `yaml:"email_daily_cap" mapstructure:"email_daily_cap"`
	EmailDailyFloor    int           `yaml:"email_daily_floor" mapstructure:"email_daily_floor"`
	WhatsAppDailyCap   int           `yaml:"whatsapp_daily_cap" mapstructure:"whatsapp_daily_cap"`
}

// DefaultThresholds returns the production trip points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EmailComplaintRate: 0.003,
		EmailBounceRate:    0.05,
		WhatsAppFailRate:   0.10,
		ScrapeErrorStreak:  3,
		ScrapeUnstableRuns: 2,
		Cooldown:           12 * time.Hour,
		SafeModeThreshold:  2,
		WhatsAppDailyCap:   40,
	}
}

// WatchedChannels are the channels that count toward safe mode.
var WatchedChannels = []model.Channel{model.ChannelEmail, model.ChannelWhatsApp, model.ChannelScrape}

// ShouldPauseEmail checks complaint rate before bounce rate; a single
// spam complaint is worse for sender reputation than many bounces.
func (t Thresholds) ShouldPauseEmail(m model.ChannelMetrics) (bool, string) {
	if m.ComplaintRate() > t.EmailComplaintRate {
		return true, ReasonComplaintRate
	}
	if m.BounceRate() > t.EmailBounceRate {
		return true, ReasonBounceRate
	}
	return false, ""
}

// ShouldPauseWhatsApp trips on the delivery failure rate.
func (t Thresholds) ShouldPauseWhatsApp(m model.ChannelMetrics) (bool, string) {
	if m.FailRate() > t.WhatsAppFailRate {
		return true, ReasonWAFailRate
	}
	return false, ""
}

// ShouldPauseScrape trips on an in-run error streak or on consecutive
// unstable runs from history.
func (t Thresholds) ShouldPauseScrape(errorStreak, unstableRuns int) (bool, string) {
	if errorStreak >= t.ScrapeErrorStreak {
		return true, ReasonErrorStreak
	}
	if unstableRuns >= t.ScrapeUnstableRuns {
		return true, ReasonUnstableRuns
	}
	return false, ""
}

// WarmupDailyLimit returns the email volume allowed on a campaign day,
// ramping from 30 through 60 to 80 plus 20 per week thereafter.
func WarmupDailyLimit(day int) int {
	switch {
	case day <= 3:
		return 30
	case day <= 7:
		return 60
	default:
		return 80 + 20*((day-8)/7)
	}
}
