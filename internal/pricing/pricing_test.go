package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func TestPricesForLevel(t *testing.T) {
	p := DefaultPolicy()

	full, simple := p.PricesForLevel(0)
	assert.Equal(t, 200, full)
	assert.Equal(t, 100, simple)

	full, simple = p.PricesForLevel(3)
	assert.Equal(t, 500, full)
	assert.Equal(t, 400, simple)
}

func TestEvaluateOffer_WindowStillOpen(t *testing.T) {
	p := DefaultPolicy()

	d := p.EvaluateOffer(model.PricingState{Level: 1, OffersInWindow: 3, SalesInWindow: 1})
	assert.False(t, d.Closed)
	assert.Equal(t, 4, d.Offers)
	assert.Equal(t, 1, d.Sales)
	assert.Equal(t, 1, d.Level)
	assert.False(t, d.Down)
}

func TestEvaluateOffer_BaselineCapturedOnce(t *testing.T) {
	p := DefaultPolicy()

	// First full window at the floor: 2 sales out of 10.
	d := p.EvaluateOffer(model.PricingState{Level: 0, OffersInWindow: 9, SalesInWindow: 2})
	require.True(t, d.Closed)
	assert.True(t, d.BaselineCaptured)
	require.NotNil(t, d.Baseline)
	assert.Equal(t, 0.2, *d.Baseline)
	assert.False(t, d.Down, "conversion equals the fresh baseline")
	assert.Zero(t, d.Offers, "counters reset on close")
	assert.Zero(t, d.Sales)

	// A later window at the floor does not revise the baseline.
	b := 0.2
	d = p.EvaluateOffer(model.PricingState{Level: 0, OffersInWindow: 9, SalesInWindow: 5, BaselineConversion: &b})
	assert.True(t, d.Closed)
	assert.False(t, d.BaselineCaptured)
	assert.Equal(t, 0.2, *d.Baseline)
}

func TestEvaluateOffer_ZeroSalesDowngrade(t *testing.T) {
	p := DefaultPolicy()

	d := p.EvaluateOffer(model.PricingState{Level: 2, OffersInWindow: 9, SalesInWindow: 0})
	require.True(t, d.Closed)
	assert.True(t, d.Down)
	assert.Equal(t, "zero_sales_in_window", d.DownReason)
	assert.Equal(t, 1, d.Level)
}

func TestEvaluateOffer_BelowBaselineDowngrade(t *testing.T) {
	p := DefaultPolicy()
	b := 0.3

	d := p.EvaluateOffer(model.PricingState{Level: 2, OffersInWindow: 9, SalesInWindow: 1, BaselineConversion: &b})
	require.True(t, d.Closed)
	assert.True(t, d.Down)
	assert.Equal(t, "below_baseline", d.DownReason)
	assert.Equal(t, 1, d.Level)
}

func TestEvaluateOffer_AtOrAboveBaselineHolds(t *testing.T) {
	p := DefaultPolicy()
	b := 0.2

	d := p.EvaluateOffer(model.PricingState{Level: 2, OffersInWindow: 9, SalesInWindow: 2, BaselineConversion: &b})
	require.True(t, d.Closed)
	assert.False(t, d.Down)
	assert.Equal(t, 2, d.Level)
}

func TestEvaluateOffer_FloorBlocksDowngrade(t *testing.T) {
	p := DefaultPolicy()

	d := p.EvaluateOffer(model.PricingState{Level: 0, OffersInWindow: 9, SalesInWindow: 0})
	require.True(t, d.Closed)
	assert.False(t, d.Down, "level never drops below zero")
	assert.Empty(t, d.DownReason)
	assert.Equal(t, 0, d.Level)
	assert.True(t, d.BaselineCaptured)
	assert.Zero(t, *d.Baseline)
}

func TestSettleAmount(t *testing.T) {
	assert.Equal(t, float64(300), SettleAmount(model.PlanComplete, 300, 200, nil))
	assert.Equal(t, float64(200), SettleAmount(model.PlanSimple, 300, 200, nil))

	override := 250.0
	assert.Equal(t, 250.0, SettleAmount(model.PlanComplete, 300, 200, &override))
}
