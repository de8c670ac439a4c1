package fallback

import "github.com/teslashibe/go-emotisense/pkg/emotion"

// Sample is one generated tick.
type Sample struct {
	Face        emotion.Vector
	AudioStress float64
	Scenario    Scenario
}

type phase struct {
	scenario Scenario
	share    float64
}

// demoPhases shapes a demo session: a settled start, a stressful stretch,
// a happy stretch, then back to normal.
var demoPhases = []phase{
	{Normal, 0.3},
	{Stressed, 0.2},
	{Happy, 0.3},
	{Normal, 0.2},
}

// DemoSession generates n ticks following the fixed demo phase plan. The
// scenario is pinned per phase and the generator's previous scenario and
// pin state are restored afterwards.
func (g *Generator) DemoSession(n int) []Sample {
	prevScenario, prevPinned := g.scenario, g.pinned
	defer func() {
		g.scenario, g.pinned = prevScenario, prevPinned
		g.timer = 0
	}()

	out := make([]Sample, 0, n)
	start := 0
	for i, p := range demoPhases {
		end := start + int(float64(n)*p.share)
		if i == len(demoPhases)-1 {
			end = n
		}
		g.SetScenario(p.scenario, true)
		for ; start < end; start++ {
			face, audio := g.Generate()
			out = append(out, Sample{Face: face, AudioStress: audio, Scenario: p.scenario})
		}
	}
	return out
}
