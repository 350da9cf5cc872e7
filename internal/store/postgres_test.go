package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pricing"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, policy: pricing.DefaultPolicy()}
	return s, mock
}

func TestPostgresStore_GetLead_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM leads WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	lead, err := s.GetLead(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, lead)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLeadIDByEmail_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM leads WHERE lower\(email\)`).
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)

	id, err := s.GetLeadIDByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStage_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE leads SET stage = \$1`).
		WithArgs(string(model.StageConsented), pgxmock.AnyArg(), int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateStage(context.Background(), 7, model.StageConsented)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QualifyLead_StageGuarded(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Zero rows affected is fine: the lead was already past NEW.
	mock.ExpectExec(`UPDATE leads SET stage = \$1, updated_at = \$2 WHERE id = \$3 AND stage = \$4`).
		WithArgs(string(model.StageQualified), pgxmock.AnyArg(), int64(7), string(model.StageNew)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.QualifyLead(context.Background(), 7)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IsOptedOut_NoRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT 1 FROM opt_outs`).
		WithArgs("hash-x", string(model.ChannelEmail)).
		WillReturnError(pgx.ErrNoRows)

	out, err := s.IsOptedOut(context.Background(), "hash-x", model.ChannelEmail)
	require.NoError(t, err)
	assert.False(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GuardMarkSent_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO contact_send_guard`).
		WithArgs("hash-x", string(model.ChannelEmail), string(model.IntentConsentRequest), int64(3), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.GuardMarkSent(context.Background(), "hash-x", model.ChannelEmail, model.IntentConsentRequest, 3)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ChannelStatus_NoRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT channel, status, reason`).
		WithArgs(string(model.ChannelScrape)).
		WillReturnError(pgx.ErrNoRows)

	cs, err := s.ChannelStatus(context.Background(), model.ChannelScrape)
	require.NoError(t, err)
	assert.Nil(t, cs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ChannelMetrics_NoRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT sent, failed, bounces, complaints`).
		WithArgs("2026-09-01", string(model.ChannelEmail)).
		WillReturnError(pgx.ErrNoRows)

	m, err := s.ChannelMetrics(context.Background(), model.ChannelEmail, "2026-09-01")
	require.NoError(t, err)
	assert.Zero(t, m.Sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetGlobalSafeMode_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO flags`).
		WithArgs(flagGlobalSafeMode, "1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetGlobalSafeMode(context.Background(), true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordOffer_Transactional(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT price_level, price_full, price_simple`).
		WillReturnRows(pgxmock.NewRows(
			[]string{"price_level", "price_full", "price_simple", "baseline_conversion", "offers_in_window", "sales_in_window", "updated_at"},
		).AddRow(0, 200, 100, (*float64)(nil), 0, 0, now))
	mock.ExpectQuery(`INSERT INTO offer_snapshots`).
		WithArgs(int64(5), "run-1", 0, 200, 100, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec(`UPDATE pricing_state`).
		WithArgs(0, 200, 100, (*float64)(nil), 1, 0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	out, err := s.RecordOffer(context.Background(), 5, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(11), out.Snapshot.ID)
	assert.Equal(t, 200, out.Snapshot.PriceFull)
	assert.Equal(t, 1, out.State.OffersInWindow)
	assert.False(t, out.Decision.Closed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplyReviewCounts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM reply_review_queue`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("PENDING", 2).
			AddRow("CODEX_DONE", 1))

	counts, err := s.ReplyReviewCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.ReviewPending])
	assert.Equal(t, 1, counts[model.ReviewDrafted])
	assert.NoError(t, mock.ExpectationsWereMet())
}
