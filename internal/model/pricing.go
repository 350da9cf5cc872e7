package model

import "time"

// PricingState is the singleton adaptive-pricing row. Level is a
// non-negative integer with no upper bound; each sale raises it by one.
type PricingState struct {
	Level              int       `json:"level"`
	PriceFull          int       `json:"price_full"`
	PriceSimple        int       `json:"price_simple"`
	BaselineConversion *float64  `json:"baseline_conversion,omitempty"`
	OffersInWindow     int       `json:"offers_in_window"`
	SalesInWindow      int       `json:"sales_in_window"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// PricingEventType labels a pricing level transition.
type PricingEventType string

const (
	PricingEventUp       PricingEventType = "UP"
	PricingEventDown     PricingEventType = "DOWN"
	PricingEventBaseline PricingEventType = "BASELINE_UPDATE"
)

// PricingEvent is one audit record of a level transition or
// baseline capture.
type PricingEvent struct {
	ID        int64            `json:"id"`
	Type      PricingEventType `json:"type"`
	FromLevel int              `json:"from_level"`
	ToLevel   int              `json:"to_level"`
	Reason    string           `json:"reason"`
	RunID     string           `json:"run_id"`
	Timestamp time.Time        `json:"timestamp"`
}

// OfferSnapshot freezes the prices shown to a lead at offer time.
// Sales settle against the latest snapshot, not the live state.
type OfferSnapshot struct {
	ID          int64     `json:"id"`
	LeadID      int64     `json:"lead_id"`
	RunID       string    `json:"run_id"`
	Level       int       `json:"level"`
	PriceFull   int       `json:"price_full"`
	PriceSimple int       `json:"price_simple"`
	OfferedAt   time.Time `json:"offered_at"`
	Converted   bool      `json:"converted"`
	ConvertedAt time.Time `json:"converted_at,omitempty"`
}
