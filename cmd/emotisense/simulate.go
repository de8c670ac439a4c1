package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-emotisense/pkg/fallback"
	"github.com/teslashibe/go-emotisense/pkg/fusion"
	"github.com/teslashibe/go-emotisense/pkg/pipeline"
	"github.com/teslashibe/go-emotisense/pkg/session"
	"github.com/teslashibe/go-emotisense/pkg/store"
	"github.com/teslashibe/go-emotisense/pkg/trigger"
)

var (
	simDashboard int
	simTicks     int
	simSeed      uint64
	simScenario  string
	simDemo      int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a session on generated signals only",
	Long: `Run a session without sensors. Face and audio signals come from the
scenario generator, which switches between normal, happy and stressed
behaviour every few ticks.

With --demo N no clock is used: N ticks following a fixed
normal/stressed/happy/normal plan are generated, stored and summarized
immediately.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	addSessionFlags(simulateCmd, &simDashboard, &simTicks)
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 0, "Generator seed (0 = random)")
	simulateCmd.Flags().StringVar(&simScenario, "scenario", "", "Pin the generator to one scenario: normal, happy, stressed")
	simulateCmd.Flags().IntVar(&simDemo, "demo", 0, "Generate a scripted demo session of N ticks and exit")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg.Pipeline.Mode = pipeline.ModeSimulation
	applySessionFlags(cmd, &cfg, simDashboard, simTicks)
	if cmd.Flags().Changed("seed") {
		cfg.Fallback.Seed = simSeed
	}
	if simDemo > 0 {
		return runDemo(cmd.Context(), cmd.OutOrStdout(), simDemo)
	}
	if simScenario == "" {
		return runSession(cmd, cfg)
	}
	sc, err := fallback.ParseScenario(simScenario)
	if err != nil {
		return err
	}
	return runSession(cmd, cfg, func(p *pipeline.Pipeline) {
		p.SetScenario(sc, true)
	})
}

// runDemo writes a scripted session one second apart, starting now.
func runDemo(ctx context.Context, out io.Writer, n int) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	var st *store.Store
	if cfg.DB != "" {
		var err error
		if st, err = store.Open(cfg.DB); err != nil {
			return err
		}
		defer st.Close()
	}

	gen, err := fallback.New(cfg.Fallback)
	if err != nil {
		return err
	}
	eng, err := fusion.New(cfg.Fusion)
	if err != nil {
		return err
	}
	det, err := trigger.NewDetector(cfg.Trigger)
	if err != nil {
		return err
	}
	agg, err := session.New(cfg.Session)
	if err != nil {
		return err
	}

	start := time.Now()
	id := agg.Start(start)
	if st != nil {
		if err := st.StartSession(ctx, id, string(pipeline.ModeSimulation), start); err != nil {
			return err
		}
	}

	var events []trigger.Event
	for i, s := range gen.DemoSession(n) {
		now := start.Add(time.Duration(i) * time.Second)
		state := eng.Fuse(s.Face, s.AudioStress)
		rec := session.Record{
			Timestamp:   now,
			Face:        s.Face,
			AudioStress: s.AudioStress,
			State:       state,
			Source:      session.SourceFallback,
		}
		agg.Append(rec)
		fired := det.Tick(state, s.Face, now)
		events = append(events, fired...)

		if st == nil {
			continue
		}
		if err := st.AppendRecord(ctx, id, rec); err != nil {
			return err
		}
		for _, e := range fired {
			if err := st.AppendTrigger(ctx, id, e); err != nil {
				return err
			}
		}
	}

	if st != nil {
		end := start.Add(time.Duration(n-1) * time.Second)
		if err := st.EndSession(ctx, id, end); err != nil {
			return err
		}
		fmt.Fprintf(out, "stored demo session %s in %s\n", id, cfg.DB)
	}
	printSummary(out, id, agg.Stats(), events)
	return nil
}
