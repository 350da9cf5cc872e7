package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

const leadColumns = `id, run_id, business_name, source_url, phone, email, website, address,
	stage, preferred_channel, audience, country_code, opt_out, consent_accepted,
	preview_url, payment_url, sale_amount, accepted_plan, won_at, lost_at, created_at, updated_at`

func (s *SQLiteStore) UpsertLead(ctx context.Context, runID string, c model.RawCandidate, audience, countryCode string) (int64, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (
			run_id, business_name, source_url, phone, email, website, address,
			stage, preferred_channel, audience, country_code, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_url) DO UPDATE SET
			run_id=excluded.run_id,
			business_name=excluded.business_name,
			phone=excluded.phone,
			email=excluded.email,
			website=excluded.website,
			address=excluded.address,
			preferred_channel=excluded.preferred_channel,
			audience=CASE WHEN excluded.audience != '' THEN excluded.audience ELSE leads.audience END,
			country_code=CASE WHEN excluded.country_code != '' THEN excluded.country_code ELSE leads.country_code END,
			updated_at=excluded.updated_at`,
		runID, strings.TrimSpace(c.Name), strings.TrimSpace(c.MapsURL),
		strings.TrimSpace(c.Phone), strings.TrimSpace(c.Email),
		strings.TrimSpace(c.Website), strings.TrimSpace(c.Address),
		string(model.StageNew), string(c.PreferredChannel()),
		strings.TrimSpace(audience), strings.ToUpper(strings.TrimSpace(countryCode)),
		now, now,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert lead")
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM leads WHERE source_url = ?`, strings.TrimSpace(c.MapsURL),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert lead id")
	}
	return id, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, leadID int64) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = ?`, leadID,
	)
	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %d", leadID)
	}
	return lead, nil
}

func (s *SQLiteStore) GetLeadIDByEmail(ctx context.Context, email string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM leads WHERE lower(email) = lower(?) ORDER BY id DESC LIMIT 1`,
		strings.TrimSpace(email),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: get lead by email")
	}
	return id, nil
}

func (s *SQLiteStore) CountLeads(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count leads")
}

func (s *SQLiteStore) ListLeadsForInitialContact(ctx context.Context, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE stage IN (?, ?) AND opt_out = 0 AND preferred_channel IN (?, ?)
		 ORDER BY CASE WHEN preferred_channel = ? THEN 0 ELSE 1 END, id ASC
		 LIMIT ?`,
		string(model.StageNew), string(model.StageQualified),
		string(model.ChannelEmail), string(model.ChannelWhatsApp),
		string(model.ChannelEmail), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads for initial contact")
	}
	return collectLeads(rows)
}

func (s *SQLiteStore) ListLeadsByStage(ctx context.Context, stage model.Stage, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE stage = ? AND opt_out = 0
		 ORDER BY id ASC LIMIT ?`,
		string(stage), limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list leads by stage %s", stage)
	}
	return collectLeads(rows)
}

func (s *SQLiteStore) ListLeads(ctx context.Context, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads ORDER BY id ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	return collectLeads(rows)
}

func (s *SQLiteStore) UpdateStage(ctx context.Context, leadID int64, stage model.Stage) error {
	now := time.Now().UTC()
	var res sql.Result
	var err error
	switch stage {
	case model.StageLost:
		res, err = s.db.ExecContext(ctx,
			`UPDATE leads SET stage = ?, lost_at = ?, updated_at = ? WHERE id = ?`,
			string(stage), now, now, leadID,
		)
	case model.StageWon:
		res, err = s.db.ExecContext(ctx,
			`UPDATE leads SET stage = ?, won_at = ?, updated_at = ? WHERE id = ?`,
			string(stage), now, now, leadID,
		)
	default:
		res, err = s.db.ExecContext(ctx,
			`UPDATE leads SET stage = ?, updated_at = ? WHERE id = ?`,
			string(stage), now, leadID,
		)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: update stage for lead %d", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

// QualifyLead promotes a freshly ingested lead to QUALIFIED. Leads
// past NEW are left alone so re-ingesting the same source never
// regresses a sequence in flight.
func (s *SQLiteStore) QualifyLead(ctx context.Context, leadID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE leads SET stage = ?, updated_at = ? WHERE id = ? AND stage = ?`,
		string(model.StageQualified), time.Now().UTC(), leadID, string(model.StageNew),
	)
	return eris.Wrapf(err, "sqlite: qualify lead %d", leadID)
}

func (s *SQLiteStore) SetConsent(ctx context.Context, leadID int64, accepted bool) error {
	stage := model.StageWaitingReply
	if accepted {
		stage = model.StageConsented
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET consent_accepted = ?, stage = ?, updated_at = ? WHERE id = ?`,
		accepted, string(stage), time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set consent for lead %d", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

func (s *SQLiteStore) SetPreviewAndPayment(ctx context.Context, leadID int64, previewURL, paymentURL string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET preview_url = ?, payment_url = ?, stage = ?, updated_at = ? WHERE id = ?`,
		previewURL, paymentURL, string(model.StageDemoPublished), time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set preview for lead %d", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

func (s *SQLiteStore) SetLeadOptedOut(ctx context.Context, leadID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET opt_out = 1, stage = ?, updated_at = ? WHERE id = ?`,
		string(model.StageUnsubscribed), time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set opt out for lead %d", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

// CloseExpiredSequences moves stale leads to LOST: WAITING_REPLY leads
// whose first consent touch is at or before the cutoff, and
// PAYMENT_SENT leads whose first offer touch is.
func (s *SQLiteStore) CloseExpiredSequences(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.id
		 FROM leads l
		 JOIN (
			SELECT lead_id, MIN(timestamp) AS first_touch
			FROM touches WHERE intent = ? GROUP BY lead_id
		 ) t ON t.lead_id = l.id
		 WHERE l.stage = ? AND l.opt_out = 0 AND t.first_touch <= ?
		 UNION
		 SELECT l.id
		 FROM leads l
		 JOIN (
			SELECT lead_id, MIN(timestamp) AS first_touch
			FROM touches WHERE intent = ? GROUP BY lead_id
		 ) t ON t.lead_id = l.id
		 WHERE l.stage = ? AND l.opt_out = 0 AND t.first_touch <= ?
		 ORDER BY 1`,
		string(model.IntentConsentRequest), string(model.StageWaitingReply), cutoff,
		string(model.IntentOffer), string(model.StagePaymentSent), cutoff,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: close expired sequences")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan expired lead id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: close expired sequences iterate")
	}

	now := time.Now().UTC()
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE leads SET stage = ?, lost_at = ?, updated_at = ? WHERE id = ?`,
			string(model.StageLost), now, now, id,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: close expired lead %d", id)
		}
	}
	return ids, nil
}

func (s *SQLiteStore) SaveTouch(ctx context.Context, t model.Touch) error {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO touches (lead_id, channel, intent, template_id, status, provider_message_id, body, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.LeadID, string(t.Channel), string(t.Intent), t.TemplateID, t.Status, t.ProviderMessageID, t.Body, ts,
	)
	return eris.Wrapf(err, "sqlite: save touch for lead %d", t.LeadID)
}

func (s *SQLiteStore) CountTouches(ctx context.Context, leadID int64, intent model.Intent) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM touches WHERE lead_id = ? AND intent = ?`,
		leadID, string(intent),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count touches")
}

func (s *SQLiteStore) FirstTouchAt(ctx context.Context, leadID int64, intent model.Intent) (time.Time, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp FROM touches WHERE lead_id = ? AND intent = ? ORDER BY id ASC LIMIT 1`,
		leadID, string(intent),
	).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return ts, eris.Wrap(err, "sqlite: first touch at")
}

func (s *SQLiteStore) LatestTouchAt(ctx context.Context, leadID int64, intent model.Intent) (time.Time, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp FROM touches WHERE lead_id = ? AND intent = ? ORDER BY id DESC LIMIT 1`,
		leadID, string(intent),
	).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return ts, eris.Wrap(err, "sqlite: latest touch at")
}

func (s *SQLiteStore) HasOfferTouch(ctx context.Context, leadID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM touches WHERE lead_id = ? AND intent = ? LIMIT 1`,
		leadID, string(model.IntentOffer),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, eris.Wrap(err, "sqlite: has offer touch")
}

func (s *SQLiteStore) SaveReply(ctx context.Context, r model.Reply) error {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO replies (lead_id, channel, body, classification, confidence, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.LeadID, string(r.Channel), r.Body, r.Classification, r.Confidence, ts,
	)
	return eris.Wrapf(err, "sqlite: save reply for lead %d", r.LeadID)
}

func (s *SQLiteStore) RegisterOptOut(ctx context.Context, contactHash string, channel model.Channel, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO opt_outs (contact_hash, channel, reason, timestamp) VALUES (?, ?, ?, ?)`,
		contactHash, string(channel), reason, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: register opt out")
}

func (s *SQLiteStore) IsOptedOut(ctx context.Context, contactHash string, channel model.Channel) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM opt_outs WHERE contact_hash = ? AND channel = ?`,
		contactHash, string(channel),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, eris.Wrap(err, "sqlite: is opted out")
}

func (s *SQLiteStore) GuardSeen(ctx context.Context, contactHash string, channel model.Channel, intent model.Intent) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM contact_send_guard WHERE contact_hash = ? AND channel = ? AND intent = ? LIMIT 1`,
		contactHash, string(channel), string(intent),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, eris.Wrap(err, "sqlite: guard seen")
}

func (s *SQLiteStore) GuardMarkSent(ctx context.Context, contactHash string, channel model.Channel, intent model.Intent, leadID int64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contact_send_guard
		 (contact_hash, channel, intent, first_lead_id, last_lead_id, first_sent_at, last_sent_at, send_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		 ON CONFLICT(contact_hash, channel, intent) DO UPDATE SET
			last_lead_id=excluded.last_lead_id,
			last_sent_at=excluded.last_sent_at,
			send_count=contact_send_guard.send_count + 1`,
		contactHash, string(channel), string(intent), leadID, leadID, now, now,
	)
	return eris.Wrap(err, "sqlite: guard mark sent")
}

func collectLeads(rows *sql.Rows) ([]model.Lead, error) {
	defer rows.Close()
	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var wonAt, lostAt sql.NullTime
	err := row.Scan(
		&l.ID, &l.RunID, &l.BusinessName, &l.SourceURL, &l.Phone, &l.Email, &l.Website, &l.Address,
		&l.Stage, &l.PreferredChannel, &l.Audience, &l.CountryCode, &l.OptOut, &l.ConsentAccepted,
		&l.PreviewURL, &l.PaymentURL, &l.SaleAmount, &l.AcceptedPlan, &wonAt, &lostAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if wonAt.Valid {
		l.WonAt = wonAt.Time
	}
	if lostAt.Valid {
		l.LostAt = lostAt.Time
	}
	return &l, nil
}
