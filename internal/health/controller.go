package health

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// Controller drives channel pause state and global safe mode against
// the store. The clock is injectable for tests.
type Controller struct {
	store      store.Store
	thresholds Thresholds
	nowFunc    func() time.Time
}

// NewController creates a Controller with the given thresholds.
func NewController(st store.Store, thresholds Thresholds) *Controller {
	return &Controller{
		store:      st,
		thresholds: thresholds,
		nowFunc:    func() time.Time { return time.Now().UTC() },
	}
}

// Thresholds returns the configured trip points.
func (c *Controller) Thresholds() Thresholds {
	return c.thresholds
}

// IsPaused reports whether a channel is currently paused. A pause
// whose cooldown has elapsed is resumed here rather than by a
// background job; the next gate check clears it.
func (c *Controller) IsPaused(ctx context.Context, channel model.Channel) (bool, error) {
	status, err := c.store.ChannelStatus(ctx, channel)
	if err != nil {
		return false, err
	}
	if status == nil || status.State != model.ChannelPaused {
		return false, nil
	}
	now := c.nowFunc()
	if !status.CooldownUntil.IsZero() && !now.Before(status.CooldownUntil) {
		if err := c.store.SetChannelResumed(ctx, channel, now); err != nil {
			return false, err
		}
		zap.L().Info("channel cooldown elapsed, resuming",
			zap.String("channel", string(channel)),
			zap.String("reason", status.Reason))
		return false, nil
	}
	return true, nil
}

// Pause pauses a channel for the configured cooldown.
func (c *Controller) Pause(ctx context.Context, channel model.Channel, reason string) error {
	now := c.nowFunc()
	if err := c.store.SetChannelPaused(ctx, channel, reason, now, now.Add(c.thresholds.Cooldown)); err != nil {
		return err
	}
	zap.L().Warn("channel paused",
		zap.String("channel", string(channel)),
		zap.String("reason", reason),
		zap.Time("cooldown_until", now.Add(c.thresholds.Cooldown)))
	return nil
}

// Resume clears a pause immediately, regardless of cooldown.
func (c *Controller) Resume(ctx context.Context, channel model.Channel) error {
	if err := c.store.SetChannelResumed(ctx, channel, c.nowFunc()); err != nil {
		return err
	}
	zap.L().Info("channel resumed", zap.String("channel", string(channel)))
	return nil
}

// EvaluateEmail checks today's email metrics and pauses the channel
// when a threshold trips. Returns the reason when a pause fired.
func (c *Controller) EvaluateEmail(ctx context.Context) (string, error) {
	m, err := c.store.ChannelMetrics(ctx, model.ChannelEmail, c.today())
	if err != nil {
		return "", err
	}
	pause, reason := c.thresholds.ShouldPauseEmail(m)
	if !pause {
		return "", nil
	}
	return reason, c.Pause(ctx, model.ChannelEmail, reason)
}

// EvaluateWhatsApp checks today's WhatsApp metrics and pauses the
// channel when the failure rate trips.
func (c *Controller) EvaluateWhatsApp(ctx context.Context) (string, error) {
	m, err := c.store.ChannelMetrics(ctx, model.ChannelWhatsApp, c.today())
	if err != nil {
		return "", err
	}
	pause, reason := c.thresholds.ShouldPauseWhatsApp(m)
	if !pause {
		return "", nil
	}
	return reason, c.Pause(ctx, model.ChannelWhatsApp, reason)
}

// EvaluateScrape checks the in-run error streak and the run-history
// instability streak, pausing the scrape channel when either trips.
func (c *Controller) EvaluateScrape(ctx context.Context, errorStreak int) (string, error) {
	unstable, err := c.store.UnstableStreak(ctx, model.ChannelScrape)
	if err != nil {
		return "", err
	}
	pause, reason := c.thresholds.ShouldPauseScrape(errorStreak, unstable)
	if !pause {
		return "", nil
	}
	return reason, c.Pause(ctx, model.ChannelScrape, reason)
}

// EvaluateSafeMode recomputes global safe mode from the current paused
// count. There is no hysteresis: the flag follows the count on every
// call, entering and leaving as channels pause and resume.
func (c *Controller) EvaluateSafeMode(ctx context.Context) (bool, error) {
	n, err := c.store.CountPausedChannels(ctx, WatchedChannels, c.nowFunc())
	if err != nil {
		return false, err
	}
	enabled := n >= c.thresholds.SafeModeThreshold
	was, err := c.store.GlobalSafeModeEnabled(ctx)
	if err != nil {
		return false, err
	}
	if enabled != was {
		if err := c.store.SetGlobalSafeMode(ctx, enabled); err != nil {
			return false, err
		}
		zap.L().Warn("global safe mode changed",
			zap.Bool("enabled", enabled),
			zap.Int("paused_channels", n))
	}
	return enabled, nil
}

// SafeModeActive reads the persisted flag.
func (c *Controller) SafeModeActive(ctx context.Context) (bool, error) {
	return c.store.GlobalSafeModeEnabled(ctx)
}

// CampaignDay returns the 1-based day index since the first recorded
// run. Day 1 when no run exists yet.
func (c *Controller) CampaignDay(ctx context.Context) (int, error) {
	first, err := c.store.FirstRunAt(ctx)
	if err != nil {
		return 0, err
	}
	if first.IsZero() {
		return 1, nil
	}
	days := int(c.nowFunc().Sub(first).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	return days, nil
}

// EmailDailyLimit returns today's email budget: the warm-up schedule,
// capped by the configured limit and held above the configured floor
// when either is set.
func (c *Controller) EmailDailyLimit(ctx context.Context) (int, error) {
	day, err := c.CampaignDay(ctx)
	if err != nil {
		return 0, err
	}
	limit := WarmupDailyLimit(day)
	if c.thresholds.EmailDailyCap > 0 && c.thresholds.EmailDailyCap < limit {
		limit = c.thresholds.EmailDailyCap
	}
	if c.thresholds.EmailDailyFloor > limit {
		limit = c.thresholds.EmailDailyFloor
	}
	return limit, nil
}

// WhatsAppDailyLimit returns the fixed WhatsApp budget.
func (c *Controller) WhatsAppDailyLimit() int {
	return c.thresholds.WhatsAppDailyCap
}

// SentToday returns how many messages went out on a channel today.
func (c *Controller) SentToday(ctx context.Context, channel model.Channel) (int, error) {
	m, err := c.store.ChannelMetrics(ctx, channel, c.today())
	if err != nil {
		return 0, err
	}
	return m.Sent, nil
}

// RecordSend adds delivery counters for today.
func (c *Controller) RecordSend(ctx context.Context, channel model.Channel, delta store.MetricsDelta) error {
	return c.store.AddChannelMetrics(ctx, channel, c.today(), delta)
}

// RegisterEmailFeedback folds provider feedback (delivered, bounce,
// and complaint counts) into today's email metrics and re-checks the
// pause thresholds. Bounces and complaints only arrive through this
// path; sends themselves never carry them. Returns the pause reason
// when the feedback tripped one.
func (c *Controller) RegisterEmailFeedback(ctx context.Context, delta store.MetricsDelta) (string, error) {
	if err := c.RecordSend(ctx, model.ChannelEmail, delta); err != nil {
		return "", err
	}
	zap.L().Info("email feedback registered",
		zap.Int("sent", delta.Sent),
		zap.Int("bounces", delta.Bounces),
		zap.Int("complaints", delta.Complaints))
	return c.EvaluateEmail(ctx)
}

func (c *Controller) today() string {
	return c.nowFunc().Format("2006-01-02")
}
