package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/db"
	"github.com/sells-group/outreach-cli/internal/pricing"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	policy  pricing.Policy
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"save_touch":       `INSERT INTO touches (lead_id, channel, intent, template_id, status, provider_message_id, body, timestamp) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"count_touches":    `SELECT COUNT(*) FROM touches WHERE lead_id = $1 AND intent = $2`,
	"is_opted_out":     `SELECT 1 FROM opt_outs WHERE contact_hash = $1 AND channel = $2`,
	"guard_seen":       `SELECT 1 FROM contact_send_guard WHERE contact_hash = $1 AND channel = $2 AND intent = $3 LIMIT 1`,
	"channel_metrics":  `SELECT sent, failed, bounces, complaints FROM channel_metrics_daily WHERE day = $1 AND channel = $2`,
	"update_stage":     `UPDATE leads SET stage = $1, updated_at = $2 WHERE id = $3`,
	"safe_mode_flag":   `SELECT value FROM flags WHERE name = $1`,
	"get_lead":         `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, policy pricing.Policy, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, policy: policy, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	run_id            TEXT NOT NULL,
	business_name     TEXT NOT NULL,
	source_url        TEXT NOT NULL UNIQUE,
	phone             TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	address           TEXT NOT NULL DEFAULT '',
	stage             TEXT NOT NULL,
	preferred_channel TEXT NOT NULL,
	audience          TEXT NOT NULL DEFAULT '',
	country_code      TEXT NOT NULL DEFAULT '',
	opt_out           BOOLEAN NOT NULL DEFAULT FALSE,
	consent_accepted  BOOLEAN NOT NULL DEFAULT FALSE,
	preview_url       TEXT NOT NULL DEFAULT '',
	payment_url       TEXT NOT NULL DEFAULT '',
	sale_amount       DOUBLE PRECISION NOT NULL DEFAULT 0,
	accepted_plan     TEXT NOT NULL DEFAULT '',
	won_at            TIMESTAMPTZ,
	lost_at           TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS touches (
	id                  BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	lead_id             BIGINT NOT NULL REFERENCES leads(id),
	channel             TEXT NOT NULL,
	intent              TEXT NOT NULL,
	template_id         TEXT NOT NULL,
	status              TEXT NOT NULL,
	provider_message_id TEXT NOT NULL DEFAULT '',
	body                TEXT NOT NULL,
	timestamp           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS replies (
	id             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	lead_id        BIGINT NOT NULL REFERENCES leads(id),
	channel        TEXT NOT NULL,
	body           TEXT NOT NULL,
	classification TEXT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	timestamp      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS opt_outs (
	id           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	contact_hash TEXT NOT NULL,
	channel      TEXT NOT NULL,
	reason       TEXT NOT NULL,
	timestamp    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(contact_hash, channel)
);

CREATE TABLE IF NOT EXISTS contact_send_guard (
	id            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	contact_hash  TEXT NOT NULL,
	channel       TEXT NOT NULL,
	intent        TEXT NOT NULL,
	first_lead_id BIGINT NOT NULL,
	last_lead_id  BIGINT NOT NULL,
	first_sent_at TIMESTAMPTZ NOT NULL,
	last_sent_at  TIMESTAMPTZ NOT NULL,
	send_count    INTEGER NOT NULL DEFAULT 1,
	UNIQUE(contact_hash, channel, intent)
);

CREATE TABLE IF NOT EXISTS pricing_state (
	id                  INTEGER PRIMARY KEY,
	price_level         INTEGER NOT NULL,
	price_full          INTEGER NOT NULL,
	price_simple        INTEGER NOT NULL,
	baseline_conversion DOUBLE PRECISION,
	offers_in_window    INTEGER NOT NULL DEFAULT 0,
	sales_in_window     INTEGER NOT NULL DEFAULT 0,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pricing_events (
	id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	event_type TEXT NOT NULL,
	from_level INTEGER NOT NULL,
	to_level   INTEGER NOT NULL,
	reason     TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	timestamp  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS offer_snapshots (
	id           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	lead_id      BIGINT NOT NULL REFERENCES leads(id),
	run_id       TEXT NOT NULL,
	price_level  INTEGER NOT NULL,
	price_full   INTEGER NOT NULL,
	price_simple INTEGER NOT NULL,
	offered_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	converted    BOOLEAN NOT NULL DEFAULT FALSE,
	converted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS reply_review_queue (
	id           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	lead_id      BIGINT NOT NULL REFERENCES leads(id),
	channel      TEXT NOT NULL,
	inbound_text TEXT NOT NULL,
	status       TEXT NOT NULL,
	intent_final TEXT NOT NULL DEFAULT '',
	draft_reply  TEXT NOT NULL DEFAULT '',
	confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_history (
	id        BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	run_id    TEXT NOT NULL,
	run_type  TEXT NOT NULL,
	unstable  BOOLEAN NOT NULL,
	reason    TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS channel_status (
	channel        TEXT PRIMARY KEY,
	status         TEXT NOT NULL,
	reason         TEXT NOT NULL,
	paused_at      TIMESTAMPTZ,
	resumed_at     TIMESTAMPTZ,
	cooldown_until TIMESTAMPTZ
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
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS incident_events (
	id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	error_type  TEXT NOT NULL,
	message     TEXT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_stage ON leads(stage);
CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(lower(email));
CREATE INDEX IF NOT EXISTS idx_touches_lead_intent ON touches(lead_id, intent);
CREATE INDEX IF NOT EXISTS idx_replies_lead_id ON replies(lead_id);
CREATE INDEX IF NOT EXISTS idx_offer_snapshots_lead_id ON offer_snapshots(lead_id);
CREATE INDEX IF NOT EXISTS idx_reply_review_status ON reply_review_queue(status);
CREATE INDEX IF NOT EXISTS idx_run_history_type ON run_history(run_type);
CREATE INDEX IF NOT EXISTS idx_incident_events_fp ON incident_events(fingerprint, timestamp);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
