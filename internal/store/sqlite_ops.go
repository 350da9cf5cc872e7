package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

func (s *SQLiteStore) RecordRun(ctx context.Context, runID string, runType model.Channel, unstable bool, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_history (run_id, run_type, unstable, reason, timestamp) VALUES (?, ?, ?, ?, ?)`,
		runID, string(runType), unstable, reason, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: record run %s", runID)
}

// UnstableStreak counts consecutive unstable runs of a type, newest
// first, stopping at the first stable run. Only the last ten runs are
// considered.
func (s *SQLiteStore) UnstableStreak(ctx context.Context, runType model.Channel) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT unstable FROM run_history WHERE run_type = ? ORDER BY id DESC LIMIT 10`,
		string(runType),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: unstable streak")
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var unstable bool
		if err := rows.Scan(&unstable); err != nil {
			return 0, eris.Wrap(err, "sqlite: scan unstable flag")
		}
		if !unstable {
			break
		}
		streak++
	}
	return streak, eris.Wrap(rows.Err(), "sqlite: unstable streak iterate")
}

func (s *SQLiteStore) FirstRunAt(ctx context.Context) (time.Time, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp FROM run_history ORDER BY id ASC LIMIT 1`,
	).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return ts, eris.Wrap(err, "sqlite: first run at")
}

func (s *SQLiteStore) SetChannelPaused(ctx context.Context, channel model.Channel, reason string, pausedAt, cooldownUntil time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_status (channel, status, reason, paused_at, resumed_at, cooldown_until)
		 VALUES (?, ?, ?, ?, NULL, ?)
		 ON CONFLICT(channel) DO UPDATE SET
			status=excluded.status, reason=excluded.reason, paused_at=excluded.paused_at,
			resumed_at=NULL, cooldown_until=excluded.cooldown_until`,
		string(channel), string(model.ChannelPaused), reason, pausedAt, cooldownUntil,
	)
	return eris.Wrapf(err, "sqlite: pause channel %s", channel)
}

func (s *SQLiteStore) SetChannelResumed(ctx context.Context, channel model.Channel, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_status (channel, status, reason, paused_at, resumed_at, cooldown_until)
		 VALUES (?, ?, '', NULL, ?, NULL)
		 ON CONFLICT(channel) DO UPDATE SET
			status=excluded.status, reason='', resumed_at=excluded.resumed_at, cooldown_until=NULL`,
		string(channel), string(model.ChannelActive), at,
	)
	return eris.Wrapf(err, "sqlite: resume channel %s", channel)
}

func (s *SQLiteStore) ChannelStatus(ctx context.Context, channel model.Channel) (*model.ChannelStatus, error) {
	var cs model.ChannelStatus
	var pausedAt, resumedAt, cooldownUntil sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT channel, status, reason, paused_at, resumed_at, cooldown_until FROM channel_status WHERE channel = ?`,
		string(channel),
	).Scan(&cs.Channel, &cs.State, &cs.Reason, &pausedAt, &resumedAt, &cooldownUntil)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: channel status %s", channel)
	}
	if pausedAt.Valid {
		cs.PausedAt = pausedAt.Time
	}
	if resumedAt.Valid {
		cs.ResumedAt = resumedAt.Time
	}
	if cooldownUntil.Valid {
		cs.CooldownUntil = cooldownUntil.Time
	}
	return &cs, nil
}

func (s *SQLiteStore) CountPausedChannels(ctx context.Context, channels []model.Channel, now time.Time) (int, error) {
	if len(channels) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(channels))
	args := []any{string(model.ChannelPaused)}
	for i, ch := range channels {
		placeholders[i] = "?"
		args = append(args, string(ch))
	}
	args = append(args, now)

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM channel_status
		 WHERE status = ? AND channel IN (`+strings.Join(placeholders, ",")+`)
		   AND (cooldown_until IS NULL OR cooldown_until > ?)`,
		args...,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count paused channels")
}

func (s *SQLiteStore) AddChannelMetrics(ctx context.Context, channel model.Channel, day string, delta MetricsDelta) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_metrics_daily (day, channel, sent, failed, bounces, complaints)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(day, channel) DO UPDATE SET
			sent=sent + excluded.sent,
			failed=failed + excluded.failed,
			bounces=bounces + excluded.bounces,
			complaints=complaints + excluded.complaints`,
		day, string(channel), delta.Sent, delta.Failed, delta.Bounces, delta.Complaints,
	)
	return eris.Wrapf(err, "sqlite: add channel metrics %s", channel)
}

func (s *SQLiteStore) ChannelMetrics(ctx context.Context, channel model.Channel, day string) (model.ChannelMetrics, error) {
	var m model.ChannelMetrics
	err := s.db.QueryRowContext(ctx,
		`SELECT sent, failed, bounces, complaints FROM channel_metrics_daily WHERE day = ? AND channel = ?`,
		day, string(channel),
	).Scan(&m.Sent, &m.Failed, &m.Bounces, &m.Complaints)
	if err == sql.ErrNoRows {
		return model.ChannelMetrics{}, nil
	}
	return m, eris.Wrapf(err, "sqlite: channel metrics %s", channel)
}

const flagGlobalSafeMode = "GLOBAL_SAFE_MODE"

func (s *SQLiteStore) SetGlobalSafeMode(ctx context.Context, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO flags (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		flagGlobalSafeMode, value, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: set global safe mode")
}

func (s *SQLiteStore) GlobalSafeModeEnabled(ctx context.Context) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM flags WHERE name = ?`, flagGlobalSafeMode,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: global safe mode")
	}
	return value == "1", nil
}

func (s *SQLiteStore) InsertIncidentEvent(ctx context.Context, e model.IncidentEvent) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO incident_events (fingerprint, error_type, message, timestamp) VALUES (?, ?, ?, ?)`,
		e.Fingerprint, e.ErrorType, e.Message, ts,
	)
	return eris.Wrap(err, "sqlite: insert incident event")
}

func (s *SQLiteStore) PruneIncidentEvents(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM incident_events WHERE timestamp < ?`, before,
	)
	return eris.Wrap(err, "sqlite: prune incident events")
}

func (s *SQLiteStore) CountIncidentEvents(ctx context.Context, fingerprint string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM incident_events WHERE fingerprint = ? AND timestamp >= ?`,
		fingerprint, since,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count incident events")
}
