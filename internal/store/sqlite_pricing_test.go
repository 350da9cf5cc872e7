package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func TestSQLite_PricingState_InitializedAtFloor(t *testing.T) {
	st := newTestSQLiteStore(t)

	state, err := st.PricingState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, state.Level)
	assert.Equal(t, 200, state.PriceFull)
	assert.Equal(t, 100, state.PriceSimple)
	assert.Nil(t, state.BaselineConversion)
	assert.Zero(t, state.OffersInWindow)
}

func TestSQLite_RecordOffer_SnapshotAndCounter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id := insertTestLead(t, st, model.RawCandidate{Name: "A", MapsURL: "u1", Email: "a@b.com"})

	out, err := st.RecordOffer(ctx, id, "run-1")
	require.NoError(t, err)
	assert.Equal(t, id, out.Snapshot.LeadID)
	assert.Equal(t, 200, out.Snapshot.PriceFull)
	assert.Equal(t, 100, out.Snapshot.PriceSimple)
	assert.False(t, out.Decision.Closed)
	assert.Equal(t, 1, out.State.OffersInWindow)
}

func TestSQLite_RecordOffer_WindowCloseAtFloor(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id := insertTestLead(t, st, model.RawCandidate{Name: "A", MapsURL: "u1", Email: "a@b.com"})

	// Ten offers with zero sales close the first window at level 0.
	var last *model.PricingState
	for i := 0; i < 10; i++ {
		out, err := st.RecordOffer(ctx, id, "run-1")
		require.NoError(t, err)
		last = &out.State
	}

	// Baseline is captured at 0.0; the level cannot drop below the floor.
	require.NotNil(t, last.BaselineConversion)
	assert.Zero(t, *last.BaselineConversion)
	assert.Equal(t, 0, last.Level)
	assert.Zero(t, last.OffersInWindow, "counters reset on window close")

	events, err := st.ListPricingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.PricingEventBaseline, events[0].Type)
	assert.Equal(t, "baseline_initialized", events[0].Reason)
}

func TestSQLite_MarkSale_LevelUpAndSettlement(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id := insertTestLead(t, st, model.RawCandidate{Name: "A", MapsURL: "u1", Email: "a@b.com"})

	_, err := st.RecordOffer(ctx, id, "run-1")
	require.NoError(t, err)

	sale, err := st.MarkSale(ctx, id, "run-1", "payment_confirmed", model.PlanComplete, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(200), sale.Amount, "settles at the snapshot price")
	assert.Equal(t, 0, sale.FromLevel)
	assert.Equal(t, 1, sale.ToLevel)
	assert.Equal(t, 300, sale.PriceFull)
	assert.Equal(t, 200, sale.PriceSimple)

	lead, err := st.GetLead(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StageWon, lead.Stage)
	assert.Equal(t, float64(200), lead.SaleAmount)
	assert.Equal(t, model.PlanComplete, lead.AcceptedPlan)
	assert.False(t, lead.WonAt.IsZero())

	state, err := st.PricingState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Level)
	assert.Zero(t, state.OffersInWindow, "window counters reset after a sale")
	assert.Zero(t, state.SalesInWindow)
}

func TestSQLite_MarkSale_SimplePlanAndOverride(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := insertTestLead(t, st, model.RawCandidate{Name: "A", MapsURL: "u1", Email: "a@b.com"})
	b := insertTestLead(t, st, model.RawCandidate{Name: "B", MapsURL: "u2", Email: "b@b.com"})

	_, err := st.RecordOffer(ctx, a, "run-1")
	require.NoError(t, err)

	sale, err := st.MarkSale(ctx, a, "run-1", "payment_confirmed", model.PlanSimple, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(100), sale.Amount)

	// Explicit amount wins over the snapshot.
	override := 150.0
	sale, err = st.MarkSale(ctx, b, "run-1", "payment_confirmed", model.PlanComplete, &override)
	require.NoError(t, err)
	assert.Equal(t, 150.0, sale.Amount)
}

func TestSQLite_MarkSale_WithoutOffer_UsesCurrentState(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id := insertTestLead(t, st, model.RawCandidate{Name: "A", MapsURL: "u1", Email: "a@b.com"})

	sale, err := st.MarkSale(ctx, id, "run-1", "payment_confirmed", model.PlanComplete, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(200), sale.Amount)
	assert.Equal(t, 1, sale.ToLevel)
}

func TestSQLite_MarkSale_MissingLead(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.MarkSale(context.Background(), 424242, "run-1", "payment_confirmed", model.PlanComplete, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_Pricing_DownAfterSale(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id := insertTestLead(t, st, model.RawCandidate{Name: "A", MapsURL: "u1", Email: "a@b.com"})

	// A sale takes the ladder to level 1, then a full window with zero
	// sales pushes it back down.
	_, err := st.MarkSale(ctx, id, "run-1", "payment_confirmed", model.PlanComplete, nil)
	require.NoError(t, err)

	var last *model.PricingState
	for i := 0; i < 10; i++ {
		out, err := st.RecordOffer(ctx, id, "run-2")
		require.NoError(t, err)
		last = &out.State
	}
	assert.Equal(t, 0, last.Level)

	events, err := st.ListPricingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Newest first.
	assert.Equal(t, model.PricingEventDown, events[0].Type)
	assert.Equal(t, "zero_sales_in_window", events[0].Reason)
	assert.Equal(t, 1, events[0].FromLevel)
	assert.Equal(t, 0, events[0].ToLevel)
	assert.Equal(t, model.PricingEventUp, events[1].Type)
}
