package session

import (
	"math"
	"time"

	"github.com/teslashibe/go-emotisense/pkg/fusion"
	"gonum.org/v1/gonum/stat"
)

// Peak is the single record with the highest value of a metric.
type Peak struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

// Stats summarizes a session. The zero-record result has every numeric
// field zero and a count entry for every dominant state.
type Stats struct {
	Count          int                          `json:"count"`
	Start          time.Time                    `json:"start"`
	End            time.Time                    `json:"end"`
	Duration       time.Duration                `json:"duration"`
	MeanStress     float64                      `json:"mean_stress"`
	MeanEngagement float64                      `json:"mean_engagement"`
	MeanConfusion  float64                      `json:"mean_confusion"`
	StateCounts    map[fusion.DominantState]int `json:"state_counts"`
	MostStressed   Peak                         `json:"most_stressed"`
	MostEngaged    Peak                         `json:"most_engaged"`
	StressVariance float64                      `json:"stress_variance"`
	Stability      float64                      `json:"stability"`
	Quality        float64                      `json:"quality"`
}

// Compute derives Stats from records using cfg's quality weights.
func Compute(records []Record, cfg Config) Stats {
	s := Stats{StateCounts: make(map[fusion.DominantState]int, len(fusion.DominantStates))}
	for _, d := range fusion.DominantStates {
		s.StateCounts[d] = 0
	}
	if len(records) == 0 {
		return s
	}

	n := len(records)
	stress := make([]float64, n)
	engagement := make([]float64, n)
	confusion := make([]float64, n)
	for i, r := range records {
		stress[i] = r.State.Stress
		engagement[i] = r.State.Engagement
		confusion[i] = r.State.Confusion
		s.StateCounts[r.State.Dominant]++

		// Ties keep the earliest record.
		if i == 0 || r.State.Stress > s.MostStressed.Score {
			s.MostStressed = Peak{Timestamp: r.Timestamp, Score: r.State.Stress}
		}
		if i == 0 || r.State.Engagement > s.MostEngaged.Score {
			s.MostEngaged = Peak{Timestamp: r.Timestamp, Score: r.State.Engagement}
		}
	}

	s.Count = n
	s.Start = records[0].Timestamp
	s.End = records[n-1].Timestamp
	s.Duration = s.End.Sub(s.Start)
	s.MeanStress = stat.Mean(stress, nil)
	s.MeanEngagement = stat.Mean(engagement, nil)
	s.MeanConfusion = stat.Mean(confusion, nil)

	// Sample variance; a single record has none.
	if n > 1 {
		s.StressVariance = stat.Variance(stress, nil)
	}
	s.Stability = math.Max(0, 1-s.StressVariance)

	wS, wE := cfg.StressWeight, cfg.EngagementWeight
	quality := (wS*(1-s.MeanStress) + wE*s.MeanEngagement) / (wS + wE) * 100
	s.Quality = math.Max(0, math.Min(100, quality))

	return s
}
