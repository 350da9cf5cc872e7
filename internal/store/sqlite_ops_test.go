package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

// --- Run history ---

func TestSQLite_UnstableStreak(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	streak, err := st.UnstableStreak(ctx, model.ChannelScrape)
	require.NoError(t, err)
	assert.Zero(t, streak)

	require.NoError(t, st.RecordRun(ctx, "r1", model.ChannelScrape, false, ""))
	require.NoError(t, st.RecordRun(ctx, "r2", model.ChannelScrape, true, "few_results"))
	require.NoError(t, st.RecordRun(ctx, "r3", model.ChannelScrape, true, "few_results"))

	streak, err = st.UnstableStreak(ctx, model.ChannelScrape)
	require.NoError(t, err)
	assert.Equal(t, 2, streak, "streak stops at the first stable run")

	// A stable run resets the streak.
	require.NoError(t, st.RecordRun(ctx, "r4", model.ChannelScrape, false, ""))
	streak, err = st.UnstableStreak(ctx, model.ChannelScrape)
	require.NoError(t, err)
	assert.Zero(t, streak)
}

func TestSQLite_UnstableStreak_PerRunType(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordRun(ctx, "r1", model.ChannelScrape, true, "few_results"))
	require.NoError(t, st.RecordRun(ctx, "r2", model.ChannelEmail, false, ""))

	streak, err := st.UnstableStreak(ctx, model.ChannelScrape)
	require.NoError(t, err)
	assert.Equal(t, 1, streak)
}

func TestSQLite_FirstRunAt(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ts, err := st.FirstRunAt(ctx)
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	require.NoError(t, st.RecordRun(ctx, "r1", model.ChannelScrape, false, ""))
	require.NoError(t, st.RecordRun(ctx, "r2", model.ChannelEmail, false, ""))

	ts, err = st.FirstRunAt(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, 5*time.Second)
}

// --- Channel status ---

func TestSQLite_ChannelPauseAndResume(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	cs, err := st.ChannelStatus(ctx, model.ChannelEmail)
	require.NoError(t, err)
	assert.Nil(t, cs, "unknown channel has no status row")

	require.NoError(t, st.SetChannelPaused(ctx, model.ChannelEmail, "bounce_rate", now, now.Add(12*time.Hour)))

	cs, err = st.ChannelStatus(ctx, model.ChannelEmail)
	require.NoError(t, err)
	require.NotNil(t, cs)
	assert.Equal(t, model.ChannelPaused, cs.State)
	assert.Equal(t, "bounce_rate", cs.Reason)
	assert.WithinDuration(t, now.Add(12*time.Hour), cs.CooldownUntil, time.Second)

	require.NoError(t, st.SetChannelResumed(ctx, model.ChannelEmail, now.Add(13*time.Hour)))
	cs, err = st.ChannelStatus(ctx, model.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, model.ChannelActive, cs.State)
	assert.Empty(t, cs.Reason)
	assert.True(t, cs.CooldownUntil.IsZero())
}

func TestSQLite_CountPausedChannels_CooldownExpiry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	watched := []model.Channel{model.ChannelEmail, model.ChannelWhatsApp, model.ChannelScrape}

	n, err := st.CountPausedChannels(ctx, watched, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, st.SetChannelPaused(ctx, model.ChannelEmail, "complaint_rate", now, now.Add(12*time.Hour)))
	require.NoError(t, st.SetChannelPaused(ctx, model.ChannelWhatsApp, "wa_fail_rate", now.Add(-13*time.Hour), now.Add(-time.Hour)))

	// WhatsApp's cooldown elapsed, so only email still counts.
	n, err = st.CountPausedChannels(ctx, watched, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, st.SetChannelPaused(ctx, model.ChannelScrape, "unstable_runs", now, now.Add(12*time.Hour)))
	n, err = st.CountPausedChannels(ctx, watched, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// --- Channel metrics ---

func TestSQLite_ChannelMetrics_Additive(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	day := "2026-09-01"

	m, err := st.ChannelMetrics(ctx, model.ChannelEmail, day)
	require.NoError(t, err)
	assert.Zero(t, m.Sent)

	require.NoError(t, st.AddChannelMetrics(ctx, model.ChannelEmail, day, MetricsDelta{Sent: 10, Bounces: 1}))
	require.NoError(t, st.AddChannelMetrics(ctx, model.ChannelEmail, day, MetricsDelta{Sent: 5, Failed: 2, Complaints: 1}))

	m, err = st.ChannelMetrics(ctx, model.ChannelEmail, day)
	require.NoError(t, err)
	assert.Equal(t, 15, m.Sent)
	assert.Equal(t, 2, m.Failed)
	assert.Equal(t, 1, m.Bounces)
	assert.Equal(t, 1, m.Complaints)

	// Other days and channels are independent.
	m, err = st.ChannelMetrics(ctx, model.ChannelEmail, "2026-09-02")
	require.NoError(t, err)
	assert.Zero(t, m.Sent)
	m, err = st.ChannelMetrics(ctx, model.ChannelWhatsApp, day)
	require.NoError(t, err)
	assert.Zero(t, m.Sent)
}

// --- Flags ---

func TestSQLite_GlobalSafeMode(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	on, err := st.GlobalSafeModeEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, st.SetGlobalSafeMode(ctx, true))
	on, err = st.GlobalSafeModeEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, st.SetGlobalSafeMode(ctx, false))
	on, err = st.GlobalSafeModeEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, on)
}

// --- Incident events ---

func TestSQLite_IncidentEvents_CountAndPrune(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, ts := range []time.Time{now.Add(-30 * time.Minute), now.Add(-5 * time.Minute), now.Add(-1 * time.Minute)} {
		require.NoError(t, st.InsertIncidentEvent(ctx, model.IncidentEvent{
			Fingerprint: "fp-1", ErrorType: "SendError", Message: "smtp timeout", Timestamp: ts,
		}))
	}
	require.NoError(t, st.InsertIncidentEvent(ctx, model.IncidentEvent{
		Fingerprint: "fp-2", ErrorType: "ScrapeError", Message: "blocked", Timestamp: now,
	}))

	n, err := st.CountIncidentEvents(ctx, "fp-1", now.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n, "events outside the window are not counted")

	require.NoError(t, st.PruneIncidentEvents(ctx, now.Add(-15*time.Minute)))
	n, err = st.CountIncidentEvents(ctx, "fp-1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n, "pruning removes only events older than the cutoff")
}
