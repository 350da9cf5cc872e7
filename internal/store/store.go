package store

import (
	"context"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pricing"
)

// MetricsDelta is an additive update to one UTC day of channel counters.
type MetricsDelta struct {
	Sent       int
	Failed     int
	Bounces    int
	Complaints int
}

// Store defines the persistence interface for the funnel control plane.
// Suppression and send-guard rows are keyed by contact hash, never by
// lead id, so a contact reappearing under a new lead stays covered.
type Store interface {
	// Leads
	UpsertLead(ctx context.Context, runID string, c model.RawCandidate, audience, countryCode string) (int64, error)
	GetLead(ctx context.Context, leadID int64) (*model.Lead, error)
	GetLeadIDByEmail(ctx context.Context, email string) (int64, error)
	CountLeads(ctx context.Context) (int, error)
	ListLeadsForInitialContact(ctx context.Context, limit int) ([]model.Lead, error)
	ListLeadsByStage(ctx context.Context, stage model.Stage, limit int) ([]model.Lead, error)
	ListLeads(ctx context.Context, limit int) ([]model.Lead, error)
	UpdateStage(ctx context.Context, leadID int64, stage model.Stage) error
	QualifyLead(ctx context.Context, leadID int64) error
	SetConsent(ctx context.Context, leadID int64, accepted bool) error
	SetPreviewAndPayment(ctx context.Context, leadID int64, previewURL, paymentURL string) error
	SetLeadOptedOut(ctx context.Context, leadID int64) error
	CloseExpiredSequences(ctx context.Context, cutoff time.Time) ([]int64, error)

	// Touches
	SaveTouch(ctx context.Context, t model.Touch) error
	CountTouches(ctx context.Context, leadID int64, intent model.Intent) (int, error)
	FirstTouchAt(ctx context.Context, leadID int64, intent model.Intent) (time.Time, error)
	LatestTouchAt(ctx context.Context, leadID int64, intent model.Intent) (time.Time, error)
	HasOfferTouch(ctx context.Context, leadID int64) (bool, error)

	// Replies
	SaveReply(ctx context.Context, r model.Reply) error

	// Suppression and send guard
	RegisterOptOut(ctx context.Context, contactHash string, channel model.Channel, reason string) error
	IsOptedOut(ctx context.Context, contactHash string, channel model.Channel) (bool, error)
	GuardSeen(ctx context.Context, contactHash string, channel model.Channel, intent model.Intent) (bool, error)
	GuardMarkSent(ctx context.Context, contactHash string, channel model.Channel, intent model.Intent, leadID int64) error

	// Pricing. RecordOffer and MarkSale are transactional
	// read-modify-writes over the singleton state row.
	PricingState(ctx context.Context) (*model.PricingState, error)
	RecordOffer(ctx context.Context, leadID int64, runID string) (*pricing.OfferOutcome, error)
	MarkSale(ctx context.Context, leadID int64, runID, reason string, plan model.Plan, amount *float64) (*pricing.SaleOutcome, error)
	ListPricingEvents(ctx context.Context, limit int) ([]model.PricingEvent, error)

	// Reply review queue
	EnqueueReplyReview(ctx context.Context, leadID int64, channel model.Channel, inboundText string) (int64, error)
	GetReplyReview(ctx context.Context, queueID int64) (*model.ReplyReviewItem, error)
	ListReplyReview(ctx context.Context, statuses []model.ReviewStatus, limit int) ([]model.ReplyReviewItem, error)
	SetReplyDecision(ctx context.Context, queueID int64, intentFinal, draftReply string, confidence float64, status model.ReviewStatus) error
	MarkReplySent(ctx context.Context, queueID int64) error
	ReplyReviewCounts(ctx context.Context) (map[model.ReviewStatus]int, error)

	// Run history
	RecordRun(ctx context.Context, runID string, runType model.Channel, unstable bool, reason string) error
	UnstableStreak(ctx context.Context, runType model.Channel) (int, error)
	FirstRunAt(ctx context.Context) (time.Time, error)

	// Channel status and metrics
	SetChannelPaused(ctx context.Context, channel model.Channel, reason string, pausedAt, cooldownUntil time.Time) error
	SetChannelResumed(ctx context.Context, channel model.Channel, at time.Time) error
	ChannelStatus(ctx context.Context, channel model.Channel) (*model.ChannelStatus, error)
	CountPausedChannels(ctx context.Context, channels []model.Channel, now time.Time) (int, error)
	AddChannelMetrics(ctx context.Context, channel model.Channel, day string, delta MetricsDelta) error
	ChannelMetrics(ctx context.Context, channel model.Channel, day string) (model.ChannelMetrics, error)

	// Flags
	SetGlobalSafeMode(ctx context.Context, enabled bool) error
	GlobalSafeModeEnabled(ctx context.Context) (bool, error)

	// Incident events
	InsertIncidentEvent(ctx context.Context, e model.IncidentEvent) error
	PruneIncidentEvents(ctx context.Context, before time.Time) error
	CountIncidentEvents(ctx context.Context, fingerprint string, since time.Time) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
