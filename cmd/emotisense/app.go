package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/teslashibe/go-emotisense/internal/config"
	"github.com/teslashibe/go-emotisense/internal/log"
	"github.com/teslashibe/go-emotisense/pkg/audioio"
	"github.com/teslashibe/go-emotisense/pkg/audiostress"
	"github.com/teslashibe/go-emotisense/pkg/capture"
	"github.com/teslashibe/go-emotisense/pkg/classifier"
	"github.com/teslashibe/go-emotisense/pkg/fallback"
	"github.com/teslashibe/go-emotisense/pkg/fusion"
	"github.com/teslashibe/go-emotisense/pkg/localizer"
	"github.com/teslashibe/go-emotisense/pkg/localizer/detection"
	"github.com/teslashibe/go-emotisense/pkg/perception"
	"github.com/teslashibe/go-emotisense/pkg/pipeline"
	"github.com/teslashibe/go-emotisense/pkg/session"
	"github.com/teslashibe/go-emotisense/pkg/stabilizer"
	"github.com/teslashibe/go-emotisense/pkg/store"
	"github.com/teslashibe/go-emotisense/pkg/trigger"
)

// app holds everything a session command needs and what must be closed.
type app struct {
	pipeline *pipeline.Pipeline
	store    *store.Store
	closers  []io.Closer
	logger   *slog.Logger
}

// newApp assembles the pipeline for cfg.Pipeline.Mode. In live mode a
// sensor that cannot be opened is logged and left out; the pipeline then
// substitutes generated signals for it every tick.
func newApp(cfg config.Config) (*app, error) {
	logger := log.L()
	a := &app{logger: logger}

	gen, err := fallback.New(cfg.Fallback)
	if err != nil {
		return nil, err
	}
	eng, err := fusion.New(cfg.Fusion)
	if err != nil {
		return nil, err
	}
	det, err := trigger.NewDetector(cfg.Trigger)
	if err != nil {
		return nil, err
	}
	agg, err := session.New(cfg.Session)
	if err != nil {
		return nil, err
	}

	c := pipeline.Components{
		Generator: gen,
		Fusion:    eng,
		Detector:  det,
		Session:   agg,
		Logger:    logger,
	}

	if cfg.DB != "" {
		st, err := store.Open(cfg.DB)
		if err != nil {
			return nil, err
		}
		a.store = st
		a.closers = append(a.closers, st)
		c.Recorder = st
	}

	if cfg.Pipeline.Mode == pipeline.ModeLive {
		a.openSensors(cfg, &c)
	}

	p, err := pipeline.New(cfg.Pipeline, c)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pipeline = p
	return a, nil
}

func (a *app) openSensors(cfg config.Config, c *pipeline.Components) {
	frames, err := capture.NewSource(cfg.Capture, a.logger)
	if err != nil {
		a.logger.Warn("camera unavailable, using generated face signal", "error", err)
	} else {
		c.Frames = frames
		a.closers = append(a.closers, frames)
	}

	if p := a.openPerception(cfg); p != nil {
		c.Perception = p
		a.closers = append(a.closers, p)
	}

	src, err := audioio.NewSource(cfg.Audio, a.logger)
	if err != nil {
		a.logger.Warn("microphone unavailable, using generated audio signal", "error", err)
		return
	}
	ext, err := audiostress.New(cfg.AudioStress)
	if err != nil {
		src.Close()
		a.logger.Warn("audio stress extractor disabled", "error", err)
		return
	}
	c.Audio = src
	c.Extractor = ext
	a.closers = append(a.closers, src)
}

// openPerception returns nil when no face detector backend could be
// opened. A missing emotion model only disables classification.
func (a *app) openPerception(cfg config.Config) *perception.Perception {
	backends, errs := detection.Open(cfg.Detection)
	for _, err := range errs {
		a.logger.Warn("face detector backend unavailable", "error", err)
	}
	loc, err := localizer.New(cfg.Localizer, backends...)
	if err != nil {
		a.logger.Warn("face localization disabled", "error", err)
		return nil
	}

	var clf classifier.Classifier
	if fer, err := classifier.NewFERPlus(cfg.Classifier); err != nil {
		a.logger.Warn("emotion classifier unavailable", "error", err)
	} else {
		clf = fer
	}

	stab, err := stabilizer.New(cfg.Stabilizer)
	if err != nil {
		loc.Close()
		if clf != nil {
			clf.Close()
		}
		a.logger.Warn("face localization disabled", "error", err)
		return nil
	}
	a.logger.Info("perception ready", "backends", strings.Join(loc.Backends(), ","), "classifier", clf != nil)
	return perception.New(loc, clf, stab, a.logger, perception.WithClassifierTimeout(cfg.Classifier.Timeout))
}

// Close releases every opened resource in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// printSummary writes the end-of-session report to w.
func printSummary(w io.Writer, id string, st session.Stats, events []trigger.Event) {
	fmt.Fprintf(w, "\nSession %s\n", id)
	fmt.Fprintf(w, "  Duration:         %s (%d ticks)\n", st.Duration, st.Count)
	fmt.Fprintf(w, "  Mean stress:      %.2f\n", st.MeanStress)
	fmt.Fprintf(w, "  Mean engagement:  %.2f\n", st.MeanEngagement)
	fmt.Fprintf(w, "  Mean confusion:   %.2f\n", st.MeanConfusion)
	fmt.Fprintf(w, "  Stability:        %.2f\n", st.Stability)
	fmt.Fprintf(w, "  Quality:          %.2f\n", st.Quality)

	if len(st.StateCounts) > 0 {
		states := make([]string, 0, len(st.StateCounts))
		for s, n := range st.StateCounts {
			states = append(states, fmt.Sprintf("%s=%d", s, n))
		}
		sort.Strings(states)
		fmt.Fprintf(w, "  States:           %s\n", strings.Join(states, " "))
	}

	counts := map[trigger.Type]int{}
	for _, e := range events {
		counts[e.Type]++
	}
	fmt.Fprintf(w, "  Events:           %d stress, %d happy, %d distraction, %d manual\n",
		counts[trigger.Stress], counts[trigger.Happy], counts[trigger.Distraction], counts[trigger.Auto])

	for _, line := range session.Feedback(st) {
		fmt.Fprintf(w, "  - %s\n", line)
	}
}
