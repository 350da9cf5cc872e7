package model

import "time"

// Stage represents a lead's position in the funnel lifecycle.
type Stage string

const (
	StageNew           Stage = "NEW"
	StageQualified     Stage = "QUALIFIED"
	StageWaitingReply  Stage = "WAITING_REPLY"
	StageConsented     Stage = "CONSENTED"
	StageDemoPublished Stage = "DEMO_PUBLISHED"
	StagePaymentSent   Stage = "PAYMENT_SENT"
	StageWon           Stage = "WON"
	StageLost          Stage = "LOST"
	StageUnsubscribed  Stage = "UNSUBSCRIBED"
)

// Terminal reports whether no further transitions leave the stage.
func (s Stage) Terminal() bool {
	switch s {
	case StageWon, StageLost, StageUnsubscribed:
		return true
	}
	return false
}

// Channel identifies an outbound delivery or acquisition channel.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelScrape   Channel = "SCRAPE"
	ChannelNone     Channel = "NONE"
)

// Intent classifies what an outbound touch was trying to accomplish.
type Intent string

const (
	IntentConsentRequest Intent = "CONSENT_REQUEST"
	IntentOffer          Intent = "OFFER"
	IntentReply          Intent = "REPLY"
)

// Plan is the product tier a lead accepts at sale time.
type Plan string

const (
	PlanComplete Plan = "COMPLETO"
	PlanSimple   Plan = "SIMPLES"
)

// NormalizePlan maps free-form plan input onto a known tier,
// defaulting to the complete plan.
func NormalizePlan(raw string) Plan {
	switch Plan(raw) {
	case PlanSimple:
		return PlanSimple
	default:
		return PlanComplete
	}
}

// Lead is a prospect moving through the funnel. SourceURL is the
// dedup key: re-ingesting the same listing updates in place.
type Lead struct {
	ID               int64     `json:"id"`
	RunID            string    `json:"run_id"`
	BusinessName     string    `json:"business_name"`
	SourceURL        string    `json:"source_url"`
	Phone            string    `json:"phone"`
	Email            string    `json:"email"`
	Website          string    `json:"website"`
	Address          string    `json:"address"`
	Stage            Stage     `json:"stage"`
	PreferredChannel Channel   `json:"preferred_channel"`
	Audience         string    `json:"audience,omitempty"`
	CountryCode      string    `json:"country_code,omitempty"`
	OptOut           bool      `json:"opt_out"`
	ConsentAccepted  bool      `json:"consent_accepted"`
	PreviewURL       string    `json:"preview_url,omitempty"`
	PaymentURL       string    `json:"payment_url,omitempty"`
	SaleAmount       float64   `json:"sale_amount,omitempty"`
	AcceptedPlan     Plan      `json:"accepted_plan,omitempty"`
	WonAt            time.Time `json:"won_at,omitempty"`
	LostAt           time.Time `json:"lost_at,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RawCandidate is one scraped listing row before qualification.
type RawCandidate struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Website string `json:"website"`
	MapsURL string `json:"maps_url"`
	Address string `json:"address"`
}

// PreferredChannel picks the outbound channel for a candidate:
// email when present, then phone, otherwise none.
func (c RawCandidate) PreferredChannel() Channel {
	if c.Email != "" {
		return ChannelEmail
	}
	if c.Phone != "" {
		return ChannelWhatsApp
	}
	return ChannelNone
}

// Touch is one outbound message attempt, recorded regardless of outcome.
type Touch struct {
	ID                int64     `json:"id"`
	LeadID            int64     `json:"lead_id"`
	Channel           Channel   `json:"channel"`
	Intent            Intent    `json:"intent"`
	TemplateID        string    `json:"template_id"`
	Status            string    `json:"status"`
	ProviderMessageID string    `json:"provider_message_id"`
	Body              string    `json:"body"`
	Timestamp         time.Time `json:"timestamp"`
}

// Reply is one inbound message with its classification.
type Reply struct {
	ID             int64     `json:"id"`
	LeadID         int64     `json:"lead_id"`
	Channel        Channel   `json:"channel"`
	Body           string    `json:"body"`
	Classification string    `json:"classification"`
	Confidence     float64   `json:"confidence"`
	Timestamp      time.Time `json:"timestamp"`
}

// ReviewStatus tracks a queued inbound reply through draft review.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "PENDING"
	ReviewDrafted  ReviewStatus = "CODEX_DONE"
	ReviewRequired ReviewStatus = "REVIEW_REQUIRED"
	ReviewSent     ReviewStatus = "SENT"
)

// ReplyReviewItem is one inbound reply awaiting a drafted response.
// Only items in CODEX_DONE may be sent.
type ReplyReviewItem struct {
	ID          int64        `json:"id"`
	LeadID      int64        `json:"lead_id"`
	Channel     Channel      `json:"channel"`
	InboundText string       `json:"inbound_text"`
	Status      ReviewStatus `json:"status"`
	IntentFinal string       `json:"intent_final"`
	DraftReply  string       `json:"draft_reply"`
	Confidence  float64      `json:"confidence"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
