package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

func (s *PostgresStore) UpsertLead(ctx context.Context, runID string, c model.RawCandidate, audience, countryCode string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO leads (
			run_id, business_name, source_url, phone, email, website, address,
			stage, preferred_channel, audience, country_code
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (source_url) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			business_name = EXCLUDED.business_name,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			website = EXCLUDED.website,
			address = EXCLUDED.address,
			preferred_channel = EXCLUDED.preferred_channel,
			audience = CASE WHEN EXCLUDED.audience != '' THEN EXCLUDED.audience ELSE leads.audience END,
			country_code = CASE WHEN EXCLUDED.country_code != '' THEN EXCLUDED.country_code ELSE leads.country_code END,
			updated_at = now()
		RETURNING id`,
		runID, strings.TrimSpace(c.Name), strings.TrimSpace(c.MapsURL),
		strings.TrimSpace(c.Phone), strings.TrimSpace(c.Email),
		strings.TrimSpace(c.Website), strings.TrimSpace(c.Address),
		string(model.StageNew), string(c.PreferredChannel()),
		strings.TrimSpace(audience), strings.ToUpper(strings.TrimSpace(countryCode)),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert lead")
	}
	return id, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID int64) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, leadID,
	)
	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get lead %d", leadID)
	}
	return lead, nil
}

func (s *PostgresStore) GetLeadIDByEmail(ctx context.Context, email string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM leads WHERE lower(email) = lower($1) ORDER BY id DESC LIMIT 1`,
		strings.TrimSpace(email),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, eris.Wrap(err, "postgres: get lead by email")
	}
	return id, nil
}

func (s *PostgresStore) CountLeads(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count leads")
}

func (s *PostgresStore) ListLeadsForInitialContact(ctx context.Context, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE stage IN ($1, $2) AND opt_out = FALSE AND preferred_channel IN ($3, $4)
		 ORDER BY CASE WHEN preferred_channel = $3 THEN 0 ELSE 1 END, id ASC
		 LIMIT $5`,
		string(model.StageNew), string(model.StageQualified),
		string(model.ChannelEmail), string(model.ChannelWhatsApp), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads for initial contact")
	}
	return collectLeadsPgx(rows)
}

func (s *PostgresStore) ListLeadsByStage(ctx context.Context, stage model.Stage, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE stage = $1 AND opt_out = FALSE
		 ORDER BY id ASC LIMIT $2`,
		string(stage), limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list leads by stage %s", stage)
	}
	return collectLeadsPgx(rows)
}

func (s *PostgresStore) ListLeads(ctx context.Context, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads ORDER BY id ASC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	return collectLeadsPgx(rows)
}

func (s *PostgresStore) UpdateStage(ctx context.Context, leadID int64, stage model.Stage) error {
	now := time.Now().UTC()
	var query string
	switch stage {
	case model.StageLost:
		query = `UPDATE leads SET stage = $1, lost_at = $2, updated_at = $2 WHERE id = $3`
	case model.StageWon:
		query = `UPDATE leads SET stage = $1, won_at = $2, updated_at = $2 WHERE id = $3`
	default:
		query = `UPDATE leads SET stage = $1, updated_at = $2 WHERE id = $3`
	}
	tag, err := s.pool.Exec(ctx, query, string(stage), now, leadID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update stage for lead %d", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %d", leadID)
	}
	return nil
}

// QualifyLead promotes a freshly ingested lead to QUALIFIED. Leads
// past NEW are left alone so re-ingesting the same source never
// regresses a sequence in flight.
func (s *PostgresStore) QualifyLead(ctx context.Context, leadID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE leads SET stage = $1, updated_at = $2 WHERE id = $3 AND stage = $4`,
		string(model.StageQualified), time.Now().UTC(), leadID, string(model.StageNew),
	)
	return eris.Wrapf(err, "postgres: qualify lead %d", leadID)
}

func (s *PostgresStore) SetConsent(ctx context.Context, leadID int64, accepted bool) error {
	stage := model.StageWaitingReply
	if accepted {
		stage = model.StageConsented
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET consent_accepted = $1, stage = $2, updated_at = $3 WHERE id = $4`,
		accepted, string(stage), time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set consent for lead %d", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %d", leadID)
	}
	return nil
}

func (s *PostgresStore) SetPreviewAndPayment(ctx context.Context, leadID int64, previewURL, paymentURL string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET preview_url = $1, payment_url = $2, stage = $3, updated_at = $4 WHERE id = $5`,
		previewURL, paymentURL, string(model.StageDemoPublished), time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set preview for lead %d", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %d", leadID)
	}
	return nil
}

func (s *PostgresStore) SetLeadOptedOut(ctx context.Context, leadID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET opt_out = TRUE, stage = $1, updated_at = $2 WHERE id = $3`,
		string(model.StageUnsubscribed), time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set opt out for lead %d", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %d", leadID)
	}
	return nil
}

func (s *PostgresStore) CloseExpiredSequences(ctx context.Context, cutoff time.Time) ([]int64, error) {
	now := time.Now().UTC()
	rows, err := s.pool.Query(ctx,
		`UPDATE leads SET stage = $1, lost_at = $2, updated_at = $2
		 WHERE id IN (
			SELECT l.id FROM leads l
			JOIN (
				SELECT lead_id, MIN(timestamp) AS first_touch
				FROM touches WHERE intent = $3 GROUP BY lead_id
			) t ON t.lead_id = l.id
			WHERE l.stage = $4 AND l.opt_out = FALSE AND t.first_touch <= $5
			UNION
			SELECT l.id FROM leads l
			JOIN (
				SELECT lead_id, MIN(timestamp) AS first_touch
				FROM touches WHERE intent = $6 GROUP BY lead_id
			) t ON t.lead_id = l.id
			WHERE l.stage = $7 AND l.opt_out = FALSE AND t.first_touch <= $5
		 )
		 RETURNING id`,
		string(model.StageLost), now,
		string(model.IntentConsentRequest), string(model.StageWaitingReply), cutoff,
		string(model.IntentOffer), string(model.StagePaymentSent),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: close expired sequences")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan expired lead id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: close expired sequences iterate")
}

func (s *PostgresStore) SaveTouch(ctx context.Context, t model.Touch) error {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO touches (lead_id, channel, intent, template_id, status, provider_message_id, body, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.LeadID, string(t.Channel), string(t.Intent), t.TemplateID, t.Status, t.ProviderMessageID, t.Body, ts,
	)
	return eris.Wrapf(err, "postgres: save touch for lead %d", t.LeadID)
}

func (s *PostgresStore) CountTouches(ctx context.Context, leadID int64, intent model.Intent) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM touches WHERE lead_id = $1 AND intent = $2`,
		leadID, string(intent),
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count touches")
}

func (s *PostgresStore) FirstTouchAt(ctx context.Context, leadID int64, intent model.Intent) (time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT timestamp FROM touches WHERE lead_id = $1 AND intent = $2 ORDER BY id ASC LIMIT 1`,
		leadID, string(intent),
	).Scan(&ts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, eris.Wrap(err, "postgres: first touch at")
	}
	return ts, nil
}

func (s *PostgresStore) LatestTouchAt(ctx context.Context, leadID int64, intent model.Intent) (time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT timestamp FROM touches WHERE lead_id = $1 AND intent = $2 ORDER BY id DESC LIMIT 1`,
		leadID, string(intent),
	).Scan(&ts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, eris.Wrap(err, "postgres: latest touch at")
	}
	return ts, nil
}

func (s *PostgresStore) HasOfferTouch(ctx context.Context, leadID int64) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM touches WHERE lead_id = $1 AND intent = $2 LIMIT 1`,
		leadID, string(model.IntentOffer),
	).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, eris.Wrap(err, "postgres: has offer touch")
	}
	return true, nil
}

func (s *PostgresStore) SaveReply(ctx context.Context, r model.Reply) error {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO replies (lead_id, channel, body, classification, confidence, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.LeadID, string(r.Channel), r.Body, r.Classification, r.Confidence, ts,
	)
	return eris.Wrapf(err, "postgres: save reply for lead %d", r.LeadID)
}

func (s *PostgresStore) RegisterOptOut(ctx context.Context, contactHash string, channel model.Channel, reason string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO opt_outs (contact_hash, channel, reason, timestamp)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (contact_hash, channel) DO NOTHING`,
		contactHash, string(channel), reason, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: register opt out")
}

func (s *PostgresStore) IsOptedOut(ctx context.Context, contactHash string, channel model.Channel) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM opt_outs WHERE contact_hash = $1 AND channel = $2`,
		contactHash, string(channel),
	).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, eris.Wrap(err, "postgres: is opted out")
	}
	return true, nil
}

func (s *PostgresStore) GuardSeen(ctx context.Context, contactHash string, channel model.Channel, intent model.Intent) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM contact_send_guard WHERE contact_hash = $1 AND channel = $2 AND intent = $3 LIMIT 1`,
		contactHash, string(channel), string(intent),
	).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, eris.Wrap(err, "postgres: guard seen")
	}
	return true, nil
}

func (s *PostgresStore) GuardMarkSent(ctx context.Context, contactHash string, channel model.Channel, intent model.Intent, leadID int64) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contact_send_guard
		 (contact_hash, channel, intent, first_lead_id, last_lead_id, first_sent_at, last_sent_at, send_count)
		 VALUES ($1, $2, $3, $4, $4, $5, $5, 1)
		 ON CONFLICT (contact_hash, channel, intent) DO UPDATE SET
			last_lead_id = EXCLUDED.last_lead_id,
			last_sent_at = EXCLUDED.last_sent_at,
			send_count = contact_send_guard.send_count + 1`,
		contactHash, string(channel), string(intent), leadID, now,
	)
	return eris.Wrap(err, "postgres: guard mark sent")
}

func collectLeadsPgx(rows pgx.Rows) ([]model.Lead, error) {
	defer rows.Close()
	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}
