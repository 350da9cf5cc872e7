package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

func (s *PostgresStore) EnqueueReplyReview(ctx context.Context, leadID int64, channel model.Channel, inboundText string) (int64, error) {
	now := time.Now().UTC()
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO reply_review_queue (lead_id, channel, inbound_text, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 RETURNING id`,
		leadID, string(channel), inboundText, string(model.ReviewPending), now,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: enqueue reply review for lead %d", leadID)
	}
	return id, nil
}

func (s *PostgresStore) GetReplyReview(ctx context.Context, queueID int64) (*model.ReplyReviewItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+replyReviewColumns+` FROM reply_review_queue WHERE id = $1`, queueID,
	)
	item, err := scanReplyReview(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get reply review %d", queueID)
	}
	return item, nil
}

func (s *PostgresStore) ListReplyReview(ctx context.Context, statuses []model.ReviewStatus, limit int) ([]model.ReplyReviewItem, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + replyReviewColumns + ` FROM reply_review_queue`
	var args []any
	argIdx := 1
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = fmt.Sprintf("$%d", argIdx)
			args = append(args, string(st))
			argIdx++
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += fmt.Sprintf(` ORDER BY id ASC LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reply review")
	}
	defer rows.Close()

	var items []model.ReplyReviewItem
	for rows.Next() {
		item, err := scanReplyReview(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan reply review")
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list reply review iterate")
}

func (s *PostgresStore) SetReplyDecision(ctx context.Context, queueID int64, intentFinal, draftReply string, confidence float64, status model.ReviewStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reply_review_queue
		 SET intent_final = $1, draft_reply = $2, confidence = $3, status = $4, updated_at = $5
		 WHERE id = $6`,
		intentFinal, draftReply, confidence, string(status), time.Now().UTC(), queueID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set reply decision %d", queueID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("reply_review not found: %d", queueID)
	}
	return nil
}

func (s *PostgresStore) MarkReplySent(ctx context.Context, queueID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reply_review_queue SET status = $1, updated_at = $2 WHERE id = $3`,
		string(model.ReviewSent), time.Now().UTC(), queueID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark reply sent %d", queueID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("reply_review not found: %d", queueID)
	}
	return nil
}

func (s *PostgresStore) ReplyReviewCounts(ctx context.Context) (map[model.ReviewStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM reply_review_queue GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: reply review counts")
	}
	defer rows.Close()

	counts := make(map[model.ReviewStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reply review count")
		}
		counts[model.ReviewStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: reply review counts iterate")
}
