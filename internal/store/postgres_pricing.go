package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pricing"
)

// pgxQuerier abstracts the pool and pgx.Tx for pricing reads that run
// both inside and outside a transaction.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) PricingState(ctx context.Context) (*model.PricingState, error) {
	return s.pricingStatePgx(ctx, s.pool)
}

func (s *PostgresStore) pricingStatePgx(ctx context.Context, q pgxQuerier) (*model.PricingState, error) {
	var st model.PricingState
	err := q.QueryRow(ctx,
		`SELECT price_level, price_full, price_simple, baseline_conversion, offers_in_window, sales_in_window, updated_at
		 FROM pricing_state WHERE id = 1`,
	).Scan(&st.Level, &st.PriceFull, &st.PriceSimple, &st.BaselineConversion, &st.OffersInWindow, &st.SalesInWindow, &st.UpdatedAt)
	if err == nil {
		return &st, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(err, "postgres: get pricing state")
	}

	now := time.Now().UTC()
	full, simple := s.policy.PricesForLevel(0)
	if _, err := q.Exec(ctx,
		`INSERT INTO pricing_state (id, price_level, price_full, price_simple, baseline_conversion, offers_in_window, sales_in_window, updated_at)
		 VALUES (1, 0, $1, $2, NULL, 0, 0, $3)`,
		full, simple, now,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: init pricing state")
	}
	return &model.PricingState{Level: 0, PriceFull: full, PriceSimple: simple, UpdatedAt: now}, nil
}

func (s *PostgresStore) RecordOffer(ctx context.Context, leadID int64, runID string) (*pricing.OfferOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: record offer begin")
	}
	defer tx.Rollback(ctx)

	state, err := s.pricingStatePgx(ctx, tx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	var snapID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO offer_snapshots (lead_id, run_id, price_level, price_full, price_simple, offered_at, converted)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		 RETURNING id`,
		leadID, runID, state.Level, state.PriceFull, state.PriceSimple, now,
	).Scan(&snapID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert offer snapshot for lead %d", leadID)
	}

	decision := s.policy.EvaluateOffer(*state)
	if decision.BaselineCaptured {
		if err := insertPricingEventPgx(ctx, tx, model.PricingEventBaseline, state.Level, state.Level, "baseline_initialized", runID, now); err != nil {
			return nil, err
		}
	}
	if decision.Down {
		if err := insertPricingEventPgx(ctx, tx, model.PricingEventDown, state.Level, decision.Level, decision.DownReason, runID, now); err != nil {
			return nil, err
		}
	}

	full, simple := s.policy.PricesForLevel(decision.Level)
	if _, err := tx.Exec(ctx,
		`UPDATE pricing_state
		 SET price_level = $1, price_full = $2, price_simple = $3, baseline_conversion = $4,
			 offers_in_window = $5, sales_in_window = $6, updated_at = $7
		 WHERE id = 1`,
		decision.Level, full, simple, decision.Baseline, decision.Offers, decision.Sales, now,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: update pricing state")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: record offer commit")
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

func (s *PostgresStore) MarkSale(ctx context.Context, leadID int64, runID, reason string, plan model.Plan, amount *float64) (*pricing.SaleOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: mark sale begin")
	}
	defer tx.Rollback(ctx)

	state, err := s.pricingStatePgx(ctx, tx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	var snapID int64
	offerLevel, offerFull, offerSimple := state.Level, state.PriceFull, state.PriceSimple
	err = tx.QueryRow(ctx,
		`SELECT id, price_level, price_full, price_simple FROM offer_snapshots
		 WHERE lead_id = $1 ORDER BY id DESC LIMIT 1`,
		leadID,
	).Scan(&snapID, &offerLevel, &offerFull, &offerSimple)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: latest snapshot for lead %d", leadID)
	}

	effective := pricing.SettleAmount(plan, offerFull, offerSimple, amount)
	if snapID != 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE offer_snapshots SET converted = TRUE, converted_at = $1 WHERE id = $2`,
			now, snapID,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: mark snapshot converted")
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE leads SET stage = $1, sale_amount = $2, accepted_plan = $3, won_at = $4, updated_at = $4 WHERE id = $5`,
		string(model.StageWon), effective, string(plan), now, leadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: mark lead won %d", leadID)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Errorf("lead not found: %d", leadID)
	}

	newLevel := state.Level + 1
	newFull, newSimple := s.policy.PricesForLevel(newLevel)
	if err := insertPricingEventPgx(ctx, tx, model.PricingEventUp, state.Level, newLevel, reason, runID, now); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE pricing_state
		 SET price_level = $1, price_full = $2, price_simple = $3, baseline_conversion = $4,
			 offers_in_window = 0, sales_in_window = 0, updated_at = $5
		 WHERE id = 1`,
		newLevel, newFull, newSimple, state.BaselineConversion, now,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: update pricing state after sale")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: mark sale commit")
	}

	return &pricing.SaleOutcome{
		LeadID: leadID, Plan: plan, Amount: effective,
		OfferLevel: offerLevel, OfferFull: offerFull, OfferSimple: offerSimple,
		FromLevel: state.Level, ToLevel: newLevel,
		PriceFull: newFull, PriceSimple: newSimple,
	}, nil
}

func (s *PostgresStore) ListPricingEvents(ctx context.Context, limit int) ([]model.PricingEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_type, from_level, to_level, reason, run_id, timestamp
		 FROM pricing_events ORDER BY id DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pricing events")
	}
	defer rows.Close()

	var events []model.PricingEvent
	for rows.Next() {
		var e model.PricingEvent
		if err := rows.Scan(&e.ID, &e.Type, &e.FromLevel, &e.ToLevel, &e.Reason, &e.RunID, &e.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pricing event")
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list pricing events iterate")
}

func insertPricingEventPgx(ctx context.Context, tx pgx.Tx, typ model.PricingEventType, from, to int, reason, runID string, at time.Time) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO pricing_events (event_type, from_level, to_level, reason, run_id, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		string(typ), from, to, reason, runID, at,
	)
	return eris.Wrapf(err, "postgres: insert pricing event %s", typ)
}
