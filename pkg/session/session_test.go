package session

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-emotisense/pkg/emotion"
	"github.com/teslashibe/go-emotisense/pkg/fusion"
)

var t0 = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

func rec(sec int, stress, engagement float64, dom fusion.DominantState) Record {
	return Record{
		Timestamp:   t0.Add(time.Duration(sec) * time.Second),
		Face:        emotion.NeutralPrior(),
		AudioStress: 0.3,
		State:       fusion.State{Stress: stress, Engagement: engagement, Confidence: 0.6, Dominant: dom},
		Source:      SourceLive,
	}
}

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	a, err := New(DefaultConfig())
	require.NoError(t, err)
	a.Start(t0)
	return a
}

func TestStats_Empty(t *testing.T) {
	a := newTestAggregator(t)

	want := Stats{StateCounts: map[fusion.DominantState]int{
		fusion.Stressed: 0, fusion.Engaged: 0, fusion.Calm: 0,
		fusion.Positive: 0, fusion.Negative: 0, fusion.Neutral: 0,
	}}
	if diff := cmp.Diff(want, a.Stats()); diff != "" {
		t.Errorf("empty stats mismatch (-want +got):\n%s", diff)
	}
}

func TestStats_Series(t *testing.T) {
	a := newTestAggregator(t)
	a.Append(rec(0, 0.2, 0.5, fusion.Calm))
	a.Append(rec(1, 0.4, 0.5, fusion.Neutral))
	a.Append(rec(2, 0.6, 0.9, fusion.Engaged))
	a.Append(rec(3, 0.8, 0.1, fusion.Stressed))

	want := Stats{
		Count:          4,
		Start:          t0,
		End:            t0.Add(3 * time.Second),
		Duration:       3 * time.Second,
		MeanStress:     0.5,
		MeanEngagement: 0.5,
		StateCounts: map[fusion.DominantState]int{
			fusion.Stressed: 1, fusion.Engaged: 1, fusion.Calm: 1,
			fusion.Positive: 0, fusion.Negative: 0, fusion.Neutral: 1,
		},
		MostStressed:   Peak{Timestamp: t0.Add(3 * time.Second), Score: 0.8},
		MostEngaged:    Peak{Timestamp: t0.Add(2 * time.Second), Score: 0.9},
		StressVariance: 0.2 / 3,
		Stability:      1 - 0.2/3,
		Quality:        50,
	}
	got := a.Stats()
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestStats_SingleRecordIsStable(t *testing.T) {
	a := newTestAggregator(t)
	a.Append(rec(0, 0.9, 0.2, fusion.Stressed))

	s := a.Stats()
	assert.Equal(t, 1, s.Count)
	assert.Zero(t, s.StressVariance)
	assert.Equal(t, 1.0, s.Stability)
	assert.Zero(t, s.Duration)
}

func TestStats_QualityClamped(t *testing.T) {
	cfg := DefaultConfig()
	a, err := New(cfg)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		a.Append(rec(i, 0, 1, fusion.Engaged))
	}
	assert.InDelta(t, 100, a.Stats().Quality, 1e-9)
}

func TestSustainedStress(t *testing.T) {
	tests := []struct {
		name   string
		stress []float64
		want   bool
	}{
		{"five high", []float64{0.8, 0.8, 0.9, 0.75, 0.71}, true},
		{"four high", []float64{0.8, 0.8, 0.9, 0.75}, false},
		{"at threshold", []float64{0.8, 0.8, 0.7, 0.9, 0.9}, false},
		{"recovered", []float64{0.9, 0.9, 0.9, 0.9, 0.9, 0.2}, false},
		{"older low ignored", []float64{0.1, 0.9, 0.9, 0.9, 0.9, 0.9}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestAggregator(t)
			for i, s := range tc.stress {
				a.Append(rec(i, s, 0.5, fusion.Neutral))
			}
			assert.Equal(t, tc.want, a.SustainedStress())
		})
	}
}

func TestStart_ResetsSeries(t *testing.T) {
	a := newTestAggregator(t)
	first := a.ID()
	a.Append(rec(0, 0.5, 0.5, fusion.Neutral))

	second := a.Start(t0.Add(time.Hour))
	assert.NotEqual(t, first, second)
	assert.Zero(t, a.Len())
	assert.Equal(t, t0.Add(time.Hour), a.StartedAt())
}

func TestRecent(t *testing.T) {
	a := newTestAggregator(t)
	for i := 0; i < 5; i++ {
		a.Append(rec(i, float64(i)/10, 0.5, fusion.Neutral))
	}

	got := a.Recent(2)
	require.Len(t, got, 2)
	assert.Equal(t, 0.3, got[0].State.Stress)
	assert.Equal(t, 0.4, got[1].State.Stress)
	assert.Len(t, a.Recent(50), 5)
}

func TestFeedback(t *testing.T) {
	tests := []struct {
		name  string
		stats Stats
		want  []string
	}{
		{"empty", Stats{}, []string{feedbackEmpty}},
		{"high stress low engagement", Stats{Count: 3, MeanStress: 0.8, MeanEngagement: 0.2},
			[]string{feedbackHigh, feedbackDisengaged}},
		{"low stress engaged", Stats{Count: 3, MeanStress: 0.1, MeanEngagement: 0.8},
			[]string{feedbackLow, feedbackEngaged}},
		{"moderate", Stats{Count: 3, MeanStress: 0.5, MeanEngagement: 0.5},
			[]string{feedbackModerate}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Feedback(tc.stats))
		})
	}
}

func TestCSV_RoundTrip(t *testing.T) {
	in := []Record{
		rec(0, 0.25, 0.5, fusion.Calm),
		{
			Timestamp:   t0.Add(1500 * time.Millisecond),
			Face:        emotion.Vector{emotion.Happy: 0.8, emotion.Neutral: 0.1, emotion.Sad: 0.1},
			AudioStress: 0.1,
			State:       fusion.State{Stress: 0.064, Engagement: 0.82, Confusion: 0, Confidence: 0.8, Dominant: fusion.Engaged},
			Source:      SourceFallback,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in))

	header, _, _ := strings.Cut(buf.String(), "\n")
	assert.Equal(t, "timestamp,angry,disgust,fear,happy,sad,surprise,neutral,audio_stress,stress,engagement,confusion,confidence,dominant_state,source", header)

	out, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.True(t, in[i].Timestamp.Equal(out[i].Timestamp), "timestamp %d", i)
		assert.Equal(t, in[i].State.Dominant, out[i].State.Dominant)
		assert.Equal(t, in[i].Source, out[i].Source)
		assert.InDelta(t, in[i].State.Stress, out[i].State.Stress, 1e-4)
		for _, l := range emotion.Labels {
			assert.InDelta(t, in[i].Face[l], out[i].Face[l], 1e-4, "record %d %v", i, l)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"negative weight", func(c *Config) { c.StressWeight = -1 }, true},
		{"zero weights", func(c *Config) { c.StressWeight, c.EngagementWeight = 0, 0 }, true},
		{"zero duration", func(c *Config) { c.AlertDuration = 0 }, true},
		{"threshold infinite", func(c *Config) { c.AlertThreshold = math.Inf(1) }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
