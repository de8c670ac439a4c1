package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-emotisense/pkg/emotion"
	"github.com/teslashibe/go-emotisense/pkg/fusion"
	"github.com/teslashibe/go-emotisense/pkg/session"
	"github.com/teslashibe/go-emotisense/pkg/trigger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "emotisense.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSession_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.StartSession(ctx, "a", "simulation", start))
	require.NoError(t, s.StartSession(ctx, "b", "live", start.Add(time.Minute)))

	latest, err := s.LatestSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)
	assert.Equal(t, "live", latest.Mode)
	assert.True(t, latest.EndedAt.IsZero())

	end := start.Add(2 * time.Minute)
	require.NoError(t, s.EndSession(ctx, "b", end))

	got, err := s.GetSession(ctx, "b")
	require.NoError(t, err)
	assert.True(t, got.EndedAt.Equal(end))
	assert.True(t, got.StartedAt.Equal(start.Add(time.Minute)))

	list, err := s.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
}

func TestSession_NotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.LatestSession(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.EndSession(ctx, "missing", time.Now()), ErrNotFound)
}

func TestSession_DuplicateID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now()

	require.NoError(t, s.StartSession(ctx, "dup", "live", now))
	assert.Error(t, s.StartSession(ctx, "dup", "live", now))
}

func TestRecords_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)
	require.NoError(t, s.StartSession(ctx, "sess", "simulation", start))

	want := []session.Record{
		{
			Timestamp:   start,
			Face:        emotion.Vector{emotion.Happy: 0.7, emotion.Neutral: 0.3},
			AudioStress: 0.2,
			State: fusion.State{
				Stress: 0.1, Engagement: 0.8, Confusion: 0.05,
				Confidence: 0.7, Valence: 0.7, Dominant: fusion.Engaged,
			},
			Source: session.SourceFallback,
		},
		{
			Timestamp:   start.Add(time.Second),
			Face:        emotion.NeutralPrior(),
			AudioStress: 0.5,
			State: fusion.State{
				Stress: 0.3, Engagement: 0.4, Confusion: 0.1,
				Confidence: 0.3, Valence: -0.2, Dominant: fusion.Negative,
			},
			Source: session.SourceLive,
		},
	}
	for _, r := range want {
		require.NoError(t, s.AppendRecord(ctx, "sess", r))
	}
	// Records of another session must not leak into the load.
	require.NoError(t, s.StartSession(ctx, "other", "live", start))
	require.NoError(t, s.AppendRecord(ctx, "other", want[0]))

	got, err := s.LoadRecords(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, got[i].Timestamp.Equal(want[i].Timestamp), "timestamp %d", i)
		assert.Equal(t, want[i].Face, got[i].Face)
		assert.Equal(t, want[i].AudioStress, got[i].AudioStress)
		assert.Equal(t, want[i].State, got[i].State)
		assert.Equal(t, want[i].Source, got[i].Source)
	}
}

func TestTriggers_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.StartSession(ctx, "sess", "live", start))

	events := []trigger.Event{
		{Type: trigger.Stress, Timestamp: start.Add(2 * time.Second), Score: 0.9},
		{Type: trigger.Happy, Timestamp: start.Add(3 * time.Second), Score: 0.8},
		{Type: trigger.Auto, Timestamp: start.Add(4 * time.Second), Score: 0.5},
	}
	for _, e := range events {
		require.NoError(t, s.AppendTrigger(ctx, "sess", e))
	}

	got, err := s.LoadTriggers(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range events {
		assert.Equal(t, events[i].Type, got[i].Type)
		assert.Equal(t, events[i].Score, got[i].Score)
		assert.True(t, got[i].Timestamp.Equal(events[i].Timestamp))
	}

	empty, err := s.LoadTriggers(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.StartSession(ctx, "kept", "live", time.Now()))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LatestSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.ID)
}
