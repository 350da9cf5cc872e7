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

func (s *PostgresStore) RecordRun(ctx context.Context, runID string, runType model.Channel, unstable bool, reason string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_history (run_id, run_type, unstable, reason, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		runID, string(runType), unstable, reason, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: record run %s", runID)
}

// UnstableStreak counts consecutive unstable runs of a type, newest
// first, stopping at the first stable run. Only the last ten runs are
// considered.
func (s *PostgresStore) UnstableStreak(ctx context.Context, runType model.Channel) (int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT unstable FROM run_history WHERE run_type = $1 ORDER BY id DESC LIMIT 10`,
		string(runType),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: unstable streak")
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var unstable bool
		if err := rows.Scan(&unstable); err != nil {
			return 0, eris.Wrap(err, "postgres: scan unstable flag")
		}
		if !unstable {
			break
		}
		streak++
	}
	return streak, eris.Wrap(rows.Err(), "postgres: unstable streak iterate")
}

func (s *PostgresStore) FirstRunAt(ctx context.Context) (time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT timestamp FROM run_history ORDER BY id ASC LIMIT 1`,
	).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	return ts, eris.Wrap(err, "postgres: first run at")
}

func (s *PostgresStore) SetChannelPaused(ctx context.Context, channel model.Channel, reason string, pausedAt, cooldownUntil time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO channel_status (channel, status, reason, paused_at, resumed_at, cooldown_until)
		 VALUES ($1, $2, $3, $4, NULL, $5)
		 ON CONFLICT (channel) DO UPDATE SET
			status=excluded.status, reason=excluded.reason, paused_at=excluded.paused_at,
			resumed_at=NULL, cooldown_until=excluded.cooldown_until`,
		string(channel), string(model.ChannelPaused), reason, pausedAt, cooldownUntil,
	)
	return eris.Wrapf(err, "postgres: pause channel %s", channel)
}

func (s *PostgresStore) SetChannelResumed(ctx context.Context, channel model.Channel, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO channel_status (channel, status, reason, paused_at, resumed_at, cooldown_until)
		 VALUES ($1, $2, '', NULL, $3, NULL)
		 ON CONFLICT (channel) DO UPDATE SET
			status=excluded.status, reason='', resumed_at=excluded.resumed_at, cooldown_until=NULL`,
		string(channel), string(model.ChannelActive), at,
	)
	return eris.Wrapf(err, "postgres: resume channel %s", channel)
}

func (s *PostgresStore) ChannelStatus(ctx context.Context, channel model.Channel) (*model.ChannelStatus, error) {
	var cs model.ChannelStatus
	var pausedAt, resumedAt, cooldownUntil *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT channel, status, reason, paused_at, resumed_at, cooldown_until FROM channel_status WHERE channel = $1`,
		string(channel),
	).Scan(&cs.Channel, &cs.State, &cs.Reason, &pausedAt, &resumedAt, &cooldownUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: channel status %s", channel)
	}
	if pausedAt != nil {
		cs.PausedAt = *pausedAt
	}
	if resumedAt != nil {
		cs.ResumedAt = *resumedAt
	}
	if cooldownUntil != nil {
		cs.CooldownUntil = *cooldownUntil
	}
	return &cs, nil
}

func (s *PostgresStore) CountPausedChannels(ctx context.Context, channels []model.Channel, now time.Time) (int, error) {
	if len(channels) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(channels))
	args := []any{string(model.ChannelPaused)}
	for i, ch := range channels {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, string(ch))
	}
	args = append(args, now)

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM channel_status
		 WHERE status = $1 AND channel IN (`+strings.Join(placeholders, ",")+`)
		   AND (cooldown_until IS NULL OR cooldown_until > `+fmt.Sprintf("$%d", len(channels)+2)+`)`,
		args...,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count paused channels")
}

func (s *PostgresStore) AddChannelMetrics(ctx context.Context, channel model.Channel, day string, delta MetricsDelta) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO channel_metrics_daily (day, channel, sent, failed, bounces, complaints)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (day, channel) DO UPDATE SET
			sent=channel_metrics_daily.sent + excluded.sent,
			failed=channel_metrics_daily.failed + excluded.failed,
			bounces=channel_metrics_daily.bounces + excluded.bounces,
			complaints=channel_metrics_daily.complaints + excluded.complaints`,
		day, string(channel), delta.Sent, delta.Failed, delta.Bounces, delta.Complaints,
	)
	return eris.Wrapf(err, "postgres: add channel metrics %s", channel)
}

func (s *PostgresStore) ChannelMetrics(ctx context.Context, channel model.Channel, day string) (model.ChannelMetrics, error) {
	var m model.ChannelMetrics
	err := s.pool.QueryRow(ctx,
		`SELECT sent, failed, bounces, complaints FROM channel_metrics_daily WHERE day = $1 AND channel = $2`,
		day, string(channel),
	).Scan(&m.Sent, &m.Failed, &m.Bounces, &m.Complaints)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ChannelMetrics{}, nil
	}
	return m, eris.Wrapf(err, "postgres: channel metrics %s", channel)
}

func (s *PostgresStore) SetGlobalSafeMode(ctx context.Context, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO flags (name, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		flagGlobalSafeMode, value, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: set global safe mode")
}

func (s *PostgresStore) GlobalSafeModeEnabled(ctx context.Context) (bool, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM flags WHERE name = $1`, flagGlobalSafeMode,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: global safe mode")
	}
	return value == "1", nil
}

func (s *PostgresStore) InsertIncidentEvent(ctx context.Context, e model.IncidentEvent) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO incident_events (fingerprint, error_type, message, timestamp) VALUES ($1, $2, $3, $4)`,
		e.Fingerprint, e.ErrorType, e.Message, ts,
	)
	return eris.Wrap(err, "postgres: insert incident event")
}

func (s *PostgresStore) PruneIncidentEvents(ctx context.Context, before time.Time) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM incident_events WHERE timestamp < $1`, before,
	)
	return eris.Wrap(err, "postgres: prune incident events")
}

func (s *PostgresStore) CountIncidentEvents(ctx context.Context, fingerprint string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM incident_events WHERE fingerprint = $1 AND timestamp >= $2`,
		fingerprint, since,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count incident events")
}
