package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pricing"
)

// querier abstracts *sql.DB and *sql.Tx for the pricing reads that run
// both inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) PricingState(ctx context.Context) (*model.PricingState, error) {
	state, err := s.pricingStateIn(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// pricingStateIn reads the singleton state row, initializing it at
// level zero on first access.
func (s *SQLiteStore) pricingStateIn(ctx context.Context, q querier) (*model.PricingState, error) {
	var st model.PricingState
	var baseline sql.NullFloat64
	err := q.QueryRowContext(ctx,
		`SELECT price_level, price_full, price_simple, baseline_conversion, offers_in_window, sales_in_window, updated_at
		 FROM pricing_state WHERE id = 1`,
	).Scan(&st.Level, &st.PriceFull, &st.PriceSimple, &baseline, &st.OffersInWindow, &st.SalesInWindow, &st.UpdatedAt)
	if err == nil {
		if baseline.Valid {
			st.BaselineConversion = &baseline.Float64
		}
		return &st, nil
	}
	if err != sql.ErrNoRows {
		return nil, eris.Wrap(err, "sqlite: get pricing state")
	}

	now := time.Now().UTC()
	full, simple := s.policy.PricesForLevel(0)
	_, err = q.ExecContext(ctx,
		`INSERT INTO pricing_state (id, price_level, price_full, price_simple, baseline_conversion, offers_in_window, sales_in_window, updated_at)
		 VALUES (1, 0, ?, ?, NULL, 0, 0, ?)`,
		full, simple, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: init pricing state")
	}
	return &model.PricingState{Level: 0, PriceFull: full, PriceSimple: simple, UpdatedAt: now}, nil
}

func (s *SQLiteStore) RecordOffer(ctx context.Context, leadID int64, runID string) (*pricing.OfferOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: record offer begin")
	}
	defer tx.Rollback()

	state, err := s.pricingStateIn(ctx, tx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO offer_snapshots (lead_id, run_id, price_level, price_full, price_simple, offered_at, converted)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		leadID, runID, state.Level, state.PriceFull, state.PriceSimple, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert offer snapshot for lead %d", leadID)
	}
	snapID, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: offer snapshot id")
	}

	decision := s.policy.EvaluateOffer(*state)
	if decision.BaselineCaptured {
		if err := insertPricingEventTx(ctx, tx, model.PricingEventBaseline, state.Level, state.Level, "baseline_initialized", runID, now); err != nil {
			return nil, err
		}
	}
	if decision.Down {
		if err := insertPricingEventTx(ctx, tx, model.PricingEventDown, state.Level, decision.Level, decision.DownReason, runID, now); err != nil {
			return nil, err
		}
	}

	full, simple := s.policy.PricesForLevel(decision.Level)
	var baseline any
	if decision.Baseline != nil {
		baseline = *decision.Baseline
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE pricing_state
		 SET price_level = ?, price_full = ?, price_simple = ?, baseline_conversion = ?,
			 offers_in_window = ?, sales_in_window = ?, updated_at = ?
		 WHERE id = 1`,
		decision.Level, full, simple, baseline, decision.Offers, decision.Sales, now,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: update pricing state")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: record offer commit")
	}

	return &pricing.OfferOutcome{
		Snapshot: model.OfferSnapshot{
			ID: snapID, LeadID: leadID, RunID: runID,
			Level: state.Level, PriceFull: state.PriceFull, PriceSimple: state.PriceSimple,
			OfferedAt: now,
		},
		State: model.PricingState{
			Level: decision.Level, PriceFull: full, PriceSimple: simple,
			BaselineConversion: decision.Baseline,
			OffersInWindow:     decision.Offers, SalesInWindow: decision.Sales,
			UpdatedAt: now,
		},
		Decision: decision,
	}, nil
}

func (s *SQLiteStore) MarkSale(ctx context.Context, leadID int64, runID, reason string, plan model.Plan, amount *float64) (*pricing.SaleOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: mark sale begin")
	}
	defer tx.Rollback()

	state, err := s.pricingStateIn(ctx, tx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	// Settle against the latest snapshot; current state is the
	// fallback for sales that never got a recorded offer.
	var snapID int64
	offerLevel, offerFull, offerSimple := state.Level, state.PriceFull, state.PriceSimple
	err = tx.QueryRowContext(ctx,
		`SELECT id, price_level, price_full, price_simple FROM offer_snapshots
		 WHERE lead_id = ? ORDER BY id DESC LIMIT 1`,
		leadID,
	).Scan(&snapID, &offerLevel, &offerFull, &offerSimple)
	if err != nil && err != sql.ErrNoRows {
		return nil, eris.Wrapf(err, "sqlite: latest snapshot for lead %d", leadID)
	}

	effective := pricing.SettleAmount(plan, offerFull, offerSimple, amount)
	if snapID != 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE offer_snapshots SET converted = 1, converted_at = ? WHERE id = ?`,
			now, snapID,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: mark snapshot converted")
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE leads SET stage = ?, sale_amount = ?, accepted_plan = ?, won_at = ?, updated_at = ? WHERE id = ?`,
		string(model.StageWon), effective, string(plan), now, now, leadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: mark lead won %d", leadID)
	}
	if err := checkRowsAffected(res, "lead", leadID); err != nil {
		return nil, err
	}

	newLevel := state.Level + 1
	newFull, newSimple := s.policy.PricesForLevel(newLevel)
	if err := insertPricingEventTx(ctx, tx, model.PricingEventUp, state.Level, newLevel, reason, runID, now); err != nil {
		return nil, err
	}
	var baseline any
	if state.BaselineConversion != nil {
		baseline = *state.BaselineConversion
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE pricing_state
		 SET price_level = ?, price_full = ?, price_simple = ?, baseline_conversion = ?,
			 offers_in_window = 0, sales_in_window = 0, updated_at = ?
		 WHERE id = 1`,
		newLevel, newFull, newSimple, baseline, now,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: update pricing state after sale")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: mark sale commit")
	}

	return &pricing.SaleOutcome{
		LeadID: leadID, Plan: plan, Amount: effective,
		OfferLevel: offerLevel, OfferFull: offerFull, OfferSimple: offerSimple,
		FromLevel: state.Level, ToLevel: newLevel,
		PriceFull: newFull, PriceSimple: newSimple,
	}, nil
}

func (s *SQLiteStore) ListPricingEvents(ctx context.Context, limit int) ([]model.PricingEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, from_level, to_level, reason, run_id, timestamp
		 FROM pricing_events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pricing events")
	}
	defer rows.Close()

	var events []model.PricingEvent
	for rows.Next() {
		var e model.PricingEvent
		if err := rows.Scan(&e.ID, &e.Type, &e.FromLevel, &e.ToLevel, &e.Reason, &e.RunID, &e.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pricing event")
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list pricing events iterate")
}

func insertPricingEventTx(ctx context.Context, tx *sql.Tx, typ model.PricingEventType, from, to int, reason, runID string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO pricing_events (event_type, from_level, to_level, reason, run_id, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(typ), from, to, reason, runID, at,
	)
	return eris.Wrapf(err, "sqlite: insert pricing event %s", typ)
}
