// Package fallback generates a believable synthetic face/audio signal when
// the camera, detector or microphone is unavailable, and for simulation.
//
// Output follows a scenario (normal, happy, stressed) whose per-label
// weights oscillate on slow sinusoids, so the series drifts like a real
// session instead of looking static or random.
package fallback

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/teslashibe/go-emotisense/pkg/emotion"
)

// Scenario selects the emotional narrative being generated.
type Scenario string

const (
	Normal   Scenario = "normal"
	Happy    Scenario = "happy"
	Stressed Scenario = "stressed"
)

// Scenarios lists the scenarios drawn from on each transition.
var Scenarios = []Scenario{Normal, Happy, Stressed}

// ParseScenario validates a scenario name.
func ParseScenario(s string) (Scenario, error) {
	for _, sc := range Scenarios {
		if string(sc) == s {
			return sc, nil
		}
	}
	return "", fmt.Errorf("fallback: unknown scenario %q", s)
}

const (
	weightFloor = 0.01
	faceRate    = 0.1  // face phase advance per tick
	audioRate   = 0.08 // audio phase advance per tick
)

// wave is base + amp*fn(phase*freq).
type wave struct {
	base, amp, freq float64
	cos             bool
}

func (w wave) at(phase float64) float64 {
	if w.cos {
		return w.base + w.amp*math.Cos(phase*w.freq)
	}
	return w.base + w.amp*math.Sin(phase*w.freq)
}

var faceWaves = map[Scenario][emotion.NumLabels]wave{
	Happy: {
		emotion.Happy:    {0.4, 0.3, 1, false},
		emotion.Neutral:  {0.3, 0.1, 0.7, true},
		emotion.Surprise: {0.1, 0.1, 1.3, false},
		emotion.Sad:      {0.05, 0.05, 0.5, false},
		emotion.Angry:    {0.05, 0.05, 0.3, true},
		emotion.Fear:     {0.03, 0.02, 2, false},
		emotion.Disgust:  {0.02, 0.03, 1.7, true},
	},
	Stressed: {
		emotion.Angry:    {0.3, 0.2, 1.2, false},
		emotion.Fear:     {0.2, 0.15, 0.8, true},
		emotion.Sad:      {0.15, 0.1, 0.6, false},
		emotion.Neutral:  {0.2, 0.1, 1, true},
		emotion.Happy:    {0.05, 0.05, 0.3, false},
		emotion.Surprise: {0.05, 0.05, 1.5, true},
		emotion.Disgust:  {0.05, 0.05, 2.1, false},
	},
	Normal: {
		emotion.Neutral:  {0.4, 0.2, 0.5, false},
		emotion.Happy:    {0.25, 0.15, 0.7, true},
		emotion.Sad:      {0.1, 0.08, 0.3, false},
		emotion.Surprise: {0.08, 0.07, 1.1, true},
		emotion.Angry:    {0.07, 0.06, 0.9, false},
		emotion.Fear:     {0.05, 0.04, 1.3, true},
		emotion.Disgust:  {0.05, 0.04, 1.7, false},
	},
}

var audioWaves = map[Scenario]wave{
	Stressed: {0.7, 0.2, 1.5, false},
	Happy:    {0.2, 0.15, 0.8, false},
	Normal:   {0.4, 0.2, 1, false},
}

// fixedNeutral is used if the floored weights ever sum to zero.
var fixedNeutral = emotion.Vector{
	emotion.Neutral:  0.7,
	emotion.Happy:    0.1,
	emotion.Sad:      0.05,
	emotion.Angry:    0.05,
	emotion.Fear:     0.05,
	emotion.Surprise: 0.03,
	emotion.Disgust:  0.02,
}

// Config holds generator parameters.
type Config struct {
	// ScenarioPeriod is the number of ticks between scenario draws.
	ScenarioPeriod int `yaml:"scenario_period"`

	// AudioJitter is the half-width of the uniform audio noise.
	AudioJitter float64 `yaml:"audio_jitter"`

	// Initial is the starting scenario.
	Initial Scenario `yaml:"initial"`

	// Seed seeds the generator. Zero draws a random seed.
	Seed uint64 `yaml:"seed"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ScenarioPeriod: 20,
		AudioJitter:    0.1,
		Initial:        Normal,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ScenarioPeriod < 1 {
		return fmt.Errorf("fallback: scenario_period must be positive, got %d", c.ScenarioPeriod)
	}
	if c.AudioJitter < 0 || c.AudioJitter > 1 {
		return fmt.Errorf("fallback: audio_jitter must be in [0,1], got %v", c.AudioJitter)
	}
	if _, err := ParseScenario(string(c.Initial)); err != nil {
		return err
	}
	return nil
}

// Generator is a stateful synthetic signal source. It is not safe for
// concurrent use.
type Generator struct {
	cfg      Config
	rng      *rand.Rand
	tick     int
	timer    int
	scenario Scenario
	pinned   bool
}

// New creates a Generator.
func New(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Generator{
		cfg:      cfg,
		rng:      rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d)),
		scenario: cfg.Initial,
	}, nil
}

// Generate advances one tick and returns a face vector and an audio
// stress score. Every ScenarioPeriod ticks a new scenario is drawn
// uniformly, self-transitions included, unless the scenario is pinned.
func (g *Generator) Generate() (emotion.Vector, float64) {
	g.tick++

	face := g.face()
	audio := g.audio()

	g.timer++
	if g.timer >= g.cfg.ScenarioPeriod {
		g.timer = 0
		if !g.pinned {
			g.scenario = Scenarios[g.rng.IntN(len(Scenarios))]
		}
	}
	return face, audio
}

func (g *Generator) face() emotion.Vector {
	phase := float64(g.tick) * faceRate
	waves := faceWaves[g.scenario]

	var v emotion.Vector
	var total float64
	for _, l := range emotion.Labels {
		v[l] = math.Max(weightFloor, waves[l].at(phase))
		total += v[l]
	}
	if total <= 0 {
		return fixedNeutral
	}
	for _, l := range emotion.Labels {
		v[l] /= total
	}
	return v
}

func (g *Generator) audio() float64 {
	phase := float64(g.tick) * audioRate
	base := audioWaves[g.scenario].at(phase)
	noise := (2*g.rng.Float64() - 1) * g.cfg.AudioJitter
	return math.Max(0, math.Min(1, base+noise))
}

// Scenario returns the scenario the next tick will use.
func (g *Generator) Scenario() Scenario {
	return g.scenario
}

// SetScenario forces a scenario and restarts the scenario timer. When pin
// is true, periodic redraws are suspended until SetScenario is called
// again with pin false.
func (g *Generator) SetScenario(s Scenario, pin bool) {
	g.scenario = s
	g.timer = 0
	g.pinned = pin
}

// Ticks returns the number of ticks generated.
func (g *Generator) Ticks() int {
	return g.tick
}
