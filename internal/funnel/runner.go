// Package funnel orchestrates the lead lifecycle: ingestion, consent
// outreach, offers, replies, sales, and the stale-lead sweep. Every
// entry point is a synchronous batch driven by one CLI invocation;
// per-lead failures are recorded and never abort the batch.
package funnel

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/health"
	"github.com/sells-group/outreach-cli/internal/incident"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/outreach"
	"github.com/sells-group/outreach-cli/internal/store"
)

// ScrapeResult is what one scraping run produced, with the run-level
// risk signals the collaborator observed.
type ScrapeResult struct {
	Candidates  []model.RawCandidate
	Unstable    bool
	ErrorStreak int
}

// Scraper acquires raw lead candidates for a query.
type Scraper interface {
	Scrape(ctx context.Context, query string, limit int) (*ScrapeResult, error)
}

// Transport delivers one rendered message to a lead over one channel.
type Transport interface {
	Send(ctx context.Context, lead model.Lead, msg outreach.Message) (providerMessageID string, err error)
}

// DemoPublisher publishes a demo site for a lead and returns its URL.
type DemoPublisher interface {
	Publish(ctx context.Context, lead model.Lead) (previewURL string, err error)
}

// PaymentProvider creates a payment link for the quoted prices.
type PaymentProvider interface {
	PaymentLink(ctx context.Context, lead model.Lead, priceFull, priceSimple int) (string, error)
}

// Enricher fills missing contact data on candidates before upsert.
type Enricher interface {
	Enrich(ctx context.Context, candidates []model.RawCandidate) []model.RawCandidate
}

// Config holds the funnel's operating knobs.
type Config struct {
	Audience        string
	CountryCode     string
	Region          string
	UnsubscribeBase string
	AllowRelaxedICP bool
	BatchLimit      int
	SweepAfter      time.Duration
	IncidentDir     string
}

// DefaultConfig returns the standard funnel knobs.
func DefaultConfig() Config {
	return Config{
		Region:     outreach.DefaultRegion,
		BatchLimit: 100,
		SweepAfter: 7 * 24 * time.Hour,
	}
}

// Runner wires the store and controllers to the injected
// collaborators. Nil collaborators are tolerated: affected sends are
// skipped with a client_not_configured log, matching a partially
// configured deployment.
type Runner struct {
	store     store.Store
	health    *health.Controller
	incidents *incident.Engine
	enricher  Enricher
	scraper   Scraper
	email     Transport
	whatsapp  Transport
	demo      DemoPublisher
	payments  PaymentProvider
	advisor   outreach.ReplyAdvisor
	cfg       Config
	nowFunc   func() time.Time
}

// Deps bundles the Runner's collaborators.
type Deps struct {
	Store     store.Store
	Health    *health.Controller
	Incidents *incident.Engine
	Enricher  Enricher
	Scraper   Scraper
	Email     Transport
	WhatsApp  Transport
	Demo      DemoPublisher
	Payments  PaymentProvider
	Advisor   outreach.ReplyAdvisor
}

// NewRunner creates a Runner.
func NewRunner(deps Deps, cfg Config) *Runner {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	if cfg.SweepAfter <= 0 {
		cfg.SweepAfter = 7 * 24 * time.Hour
	}
	if cfg.Region == "" {
		cfg.Region = outreach.DefaultRegion
	}
	advisor := deps.Advisor
	if advisor == nil {
		advisor = outreach.KeywordAdvisor{}
	}
	return &Runner{
		store:     deps.Store,
		health:    deps.Health,
		incidents: deps.Incidents,
		enricher:  deps.Enricher,
		scraper:   deps.Scraper,
		email:     deps.Email,
		whatsapp:  deps.WhatsApp,
		demo:      deps.Demo,
		payments:  deps.Payments,
		advisor:   advisor,
		cfg:       cfg,
		nowFunc:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *Runner) newRunID() string {
	return uuid.NewString()
}

func (r *Runner) transportFor(channel model.Channel) Transport {
	switch channel {
	case model.ChannelEmail:
		return r.email
	case model.ChannelWhatsApp:
		return r.whatsapp
	default:
		return nil
	}
}

// contactFor returns the canonical contact address for a lead on a
// channel: the e-mail as-is, or the phone in E.164.
func (r *Runner) contactFor(lead model.Lead, channel model.Channel) (string, error) {
	if channel == model.ChannelEmail {
		return lead.Email, nil
	}
	return outreach.CanonicalPhone(lead.Phone, r.cfg.Region)
}

// reportIncident registers a failure and writes a report when the
// escalation level warrants one.
func (r *Runner) reportIncident(ctx context.Context, errorType, message string, errCtx map[string]string) {
	if r.incidents == nil {
		return
	}
	inc, err := r.incidents.Register(ctx, errorType, message, "", errCtx)
	if err != nil {
		zap.L().Error("funnel: incident registration failed", zap.Error(err))
		return
	}
	if incident.ShouldGenerateReport(inc.Level) && r.cfg.IncidentDir != "" {
		if _, err := r.incidents.WriteReport(inc, r.cfg.IncidentDir); err != nil {
			zap.L().Error("funnel: incident report failed", zap.Error(err))
		}
	}
}
