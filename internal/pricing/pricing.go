// Package pricing holds the adaptive price ladder: a single level that
// moves up one step on every sale and down at most one step when a
// closed offer window converts poorly. Movement is asymmetric on
// purpose; a sale always outweighs a bad window. The level has no
// ceiling, so a long winning streak keeps raising prices until the
// window mechanism pushes back.
package pricing

import "github.com/sells-group/outreach-cli/internal/model"

// Policy fixes the price ladder and the offer window size.
type Policy struct {
	BaseFull   int
	BaseSimple int
	Step       int
	WindowSize int
}

// DefaultPolicy returns the standard ladder: 200/100 base prices,
// 100 per level, windows of 10 offers.
func DefaultPolicy() Policy {
	return Policy{BaseFull: 200, BaseSimple: 100, Step: 100, WindowSize: 10}
}

// PricesForLevel returns the full and simple plan prices at a level.
func (p Policy) PricesForLevel(level int) (full, simple int) {
	return p.BaseFull + level*p.Step, p.BaseSimple + level*p.Step
}

// WindowDecision is the outcome of evaluating a (possibly closed)
// offer window after one more offer was counted.
type WindowDecision struct {
	Closed           bool
	Conversion       float64
	BaselineCaptured bool
	Baseline         *float64
	Down             bool
	DownReason       string
	Level            int
	Offers           int
	Sales            int
}

// EvaluateOffer counts one more offer against the state and, when the
// window fills, decides the downgrade and baseline capture. Counters
// reset whenever the window closes, regardless of direction.
func (p Policy) EvaluateOffer(state model.PricingState) WindowDecision {
	d := WindowDecision{
		Level:    state.Level,
		Offers:   state.OffersInWindow + 1,
		Sales:    state.SalesInWindow,
		Baseline: state.BaselineConversion,
	}
	if d.Offers < p.WindowSize {
		return d
	}

	d.Closed = true
	d.Conversion = float64(d.Sales) / float64(d.Offers)

	// The first full window at the floor level defines the baseline.
	// It is captured exactly once and never revised.
	if state.Level == 0 && state.BaselineConversion == nil {
		b := d.Conversion
		d.Baseline = &b
		d.BaselineCaptured = true
	}

	switch {
	case d.Sales == 0:
		d.Down = true
		d.DownReason = "zero_sales_in_window"
	case d.Baseline != nil && d.Conversion < *d.Baseline:
		d.Down = true
		d.DownReason = "below_baseline"
	}
	if d.Down {
		if state.Level > 0 {
			d.Level = state.Level - 1
		} else {
			// Already at the floor. No event, counters still reset.
			d.Down = false
			d.DownReason = ""
		}
	}

	d.Offers = 0
	d.Sales = 0
	return d
}

// OfferOutcome reports the state after an offer was recorded,
// including the snapshot prices actually quoted to the lead.
type OfferOutcome struct {
	Snapshot model.OfferSnapshot
	State    model.PricingState
	Decision WindowDecision
}

// SaleOutcome reports a completed sale: the amount settled from the
// offer snapshot and the level transition it triggered.
type SaleOutcome struct {
	LeadID      int64
	Plan        model.Plan
	Amount      float64
	OfferLevel  int
	OfferFull   int
	OfferSimple int
	FromLevel   int
	ToLevel     int
	PriceFull   int
	PriceSimple int
}

// SettleAmount picks the sale amount: an explicit override wins,
// otherwise the snapshot price for the chosen plan.
func SettleAmount(plan model.Plan, offerFull, offerSimple int, override *float64) float64 {
	if override != nil {
		return *override
	}
	if plan == model.PlanSimple {
		return float64(offerSimple)
	}
	return float64(offerFull)
}
