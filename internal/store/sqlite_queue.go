package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

const replyReviewColumns = `id, lead_id, channel, inbound_text, status, intent_final, draft_reply, confidence, created_at, updated_at`

func (s *SQLiteStore) EnqueueReplyReview(ctx context.Context, leadID int64, channel model.Channel, inboundText string) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reply_review_queue (lead_id, channel, inbound_text, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		leadID, string(channel), inboundText, string(model.ReviewPending), now, now,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: enqueue reply review for lead %d", leadID)
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: enqueue reply review id")
}

func (s *SQLiteStore) GetReplyReview(ctx context.Context, queueID int64) (*model.ReplyReviewItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+replyReviewColumns+` FROM reply_review_queue WHERE id = ?`, queueID,
	)
	item, err := scanReplyReview(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get reply review %d", queueID)
	}
	return item, nil
}

func (s *SQLiteStore) ListReplyReview(ctx context.Context, statuses []model.ReviewStatus, limit int) ([]model.ReplyReviewItem, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + replyReviewColumns + ` FROM reply_review_queue`
	var args []any
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reply review")
	}
	defer rows.Close()

	var items []model.ReplyReviewItem
	for rows.Next() {
		item, err := scanReplyReview(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reply review")
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list reply review iterate")
}

func (s *SQLiteStore) SetReplyDecision(ctx context.Context, queueID int64, intentFinal, draftReply string, confidence float64, status model.ReviewStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reply_review_queue
		 SET intent_final = ?, draft_reply = ?, confidence = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		intentFinal, draftReply, confidence, string(status), time.Now().UTC(), queueID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set reply decision %d", queueID)
	}
	return checkRowsAffected(res, "reply_review", queueID)
}

func (s *SQLiteStore) MarkReplySent(ctx context.Context, queueID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reply_review_queue SET status = ?, updated_at = ? WHERE id = ?`,
		string(model.ReviewSent), time.Now().UTC(), queueID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark reply sent %d", queueID)
	}
	return checkRowsAffected(res, "reply_review", queueID)
}

func (s *SQLiteStore) ReplyReviewCounts(ctx context.Context) (map[model.ReviewStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM reply_review_queue GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: reply review counts")
	}
	defer rows.Close()

	counts := make(map[model.ReviewStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reply review count")
		}
		counts[model.ReviewStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: reply review counts iterate")
}

func scanReplyReview(row scannable) (*model.ReplyReviewItem, error) {
	var item model.ReplyReviewItem
	err := row.Scan(
		&item.ID, &item.LeadID, &item.Channel, &item.InboundText, &item.Status,
		&item.IntentFinal, &item.DraftReply, &item.Confidence, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
