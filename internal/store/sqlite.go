package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-cli/internal/pricing"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db     *sql.DB
	policy pricing.Policy
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, policy pricing.Policy) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, policy: policy}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id            TEXT NOT NULL,
	business_name     TEXT NOT NULL,
	source_url        TEXT NOT NULL,
	phone             TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	address           TEXT NOT NULL DEFAULT '',
	stage             TEXT NOT NULL,
	preferred_channel TEXT NOT NULL,
	audience          TEXT NOT NULL DEFAULT '',
	country_code      TEXT NOT NULL DEFAULT '',
	opt_out           INTEGER NOT NULL DEFAULT 0,
	consent_accepted  INTEGER NOT NULL DEFAULT 0,
	preview_url       TEXT NOT NULL DEFAULT '',
	payment_url       TEXT NOT NULL DEFAULT '',
	sale_amount       REAL NOT NULL DEFAULT 0,
	accepted_plan     TEXT NOT NULL DEFAULT '',
	won_at            DATETIME,
	lost_at           DATETIME,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL,
	UNIQUE(source_url)
);

CREATE TABLE IF NOT EXISTS touches (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	lead_id             INTEGER NOT NULL REFERENCES leads(id),
	channel             TEXT NOT NULL,
	intent              TEXT NOT NULL,
	template_id         TEXT NOT NULL,
	status              TEXT NOT NULL,
	provider_message_id TEXT NOT NULL DEFAULT '',
	body                TEXT NOT NULL,
	timestamp           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS replies (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	lead_id        INTEGER NOT NULL REFERENCES leads(id),
	channel        TEXT NOT NULL,
	body           TEXT NOT NULL,
	classification TEXT NOT NULL,
	confidence     REAL NOT NULL,
	timestamp      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS opt_outs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	contact_hash TEXT NOT NULL,
	channel      TEXT NOT NULL,
	reason       TEXT NOT NULL,
	timestamp    DATETIME NOT NULL,
	UNIQUE(contact_hash, channel)
);

CREATE TABLE IF NOT EXISTS contact_send_guard (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	contact_hash  TEXT NOT NULL,
	channel       TEXT NOT NULL,
	intent        TEXT NOT NULL,
	first_lead_id INTEGER NOT NULL,
	last_lead_id  INTEGER NOT NULL,
	first_sent_at DATETIME NOT NULL,
	last_sent_at  DATETIME NOT NULL,
	send_count    INTEGER NOT NULL DEFAULT 1,
	UNIQUE(contact_hash, channel, intent)
);

CREATE TABLE IF NOT EXISTS pricing_state (
	id                  INTEGER PRIMARY KEY,
	price_level         INTEGER NOT NULL,
	price_full          INTEGER NOT NULL,
	price_simple        INTEGER NOT NULL,
	baseline_conversion REAL,
	offers_in_window    INTEGER NOT NULL DEFAULT 0,
	sales_in_window     INTEGER NOT NULL DEFAULT 0,
	updated_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pricing_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	from_level INTEGER NOT NULL,
	to_level   INTEGER NOT NULL,
	reason     TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	timestamp  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS offer_snapshots (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	lead_id      INTEGER NOT NULL REFERENCES leads(id),
	run_id       TEXT NOT NULL,
	price_level  INTEGER NOT NULL,
	price_full   INTEGER NOT NULL,
	price_simple INTEGER NOT NULL,
	offered_at   DATETIME NOT NULL,
	converted    INTEGER NOT NULL DEFAULT 0,
	converted_at DATETIME
);

CREATE TABLE IF NOT EXISTS reply_review_queue (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	lead_id      INTEGER NOT NULL REFERENCES leads(id),
	channel      TEXT NOT NULL,
	inbound_text TEXT NOT NULL,
	status       TEXT NOT NULL,
	intent_final TEXT NOT NULL DEFAULT '',
	draft_reply  TEXT NOT NULL DEFAULT '',
	confidence   REAL NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS run_history (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    TEXT NOT NULL,
	run_type  TEXT NOT NULL,
	unstable  INTEGER NOT NULL,
	reason    TEXT NOT NULL,
	timestamp DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS channel_status (
	channel        TEXT PRIMARY KEY,
	status         TEXT NOT NULL,
	reason         TEXT NOT NULL,
	paused_at      DATETIME,
	resumed_at     DATETIME,
	cooldown_until DATETIME
);

CREATE TABLE IF NOT EXISTS channel_metrics_daily (
	day        TEXT NOT NULL,
	channel    TEXT NOT NULL,
	sent       INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	bounces    INTEGER NOT NULL DEFAULT 0,
	complaints INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (day, channel)
);

CREATE TABLE IF NOT EXISTS flags (
	name       TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS incident_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint TEXT NOT NULL,
	error_type  TEXT NOT NULL,
	message     TEXT NOT NULL,
	timestamp   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_stage ON leads(stage);
CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email);
CREATE INDEX IF NOT EXISTS idx_touches_lead_intent ON touches(lead_id, intent);
CREATE INDEX IF NOT EXISTS idx_replies_lead_id ON replies(lead_id);
CREATE INDEX IF NOT EXISTS idx_offer_snapshots_lead_id ON offer_snapshots(lead_id);
CREATE INDEX IF NOT EXISTS idx_reply_review_status ON reply_review_queue(status);
CREATE INDEX IF NOT EXISTS idx_run_history_type ON run_history(run_type);
CREATE INDEX IF NOT EXISTS idx_incident_events_fp ON incident_events(fingerprint, timestamp);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// helpers

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %d", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}
