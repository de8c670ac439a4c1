package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-emotisense/internal/config"
	"github.com/teslashibe/go-emotisense/pkg/pipeline"
	"github.com/teslashibe/go-emotisense/pkg/trigger"
	"github.com/teslashibe/go-emotisense/pkg/web"
)

var (
	runDashboard int
	runTicks     int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Monitor a live session from the camera and microphone",
	Long: `Run a live session. Each second a frame and one second of audio are
analyzed; a sensor that is missing or failing is replaced by generated
signals for that tick and the dashboard reports the degradation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.Pipeline.Mode = pipeline.ModeLive
		applySessionFlags(cmd, &cfg, runDashboard, runTicks)
		return runSession(cmd, cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addSessionFlags(runCmd, &runDashboard, &runTicks)
}

func addSessionFlags(cmd *cobra.Command, dashboard, ticks *int) {
	cmd.Flags().IntVar(dashboard, "dashboard", 0, "Dashboard port (default from config, 0 in config disables it)")
	cmd.Flags().IntVar(ticks, "ticks", 0, "Stop after this many ticks (0 = until interrupted)")
}

func applySessionFlags(cmd *cobra.Command, c *config.Config, dashboard, ticks int) {
	if cmd.Flags().Changed("dashboard") {
		c.Port = dashboard
	}
	if cmd.Flags().Changed("ticks") {
		c.Pipeline.MaxTicks = ticks
	}
}

// runSession ticks the pipeline until interrupted or MaxTicks, serving
// the dashboard alongside, then prints the session summary.
func runSession(cmd *cobra.Command, c config.Config, setup ...func(*pipeline.Pipeline)) error {
	if err := c.Validate(); err != nil {
		return err
	}

	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := a.pipeline
	id, err := p.Start(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, fn := range setup {
		fn(p)
	}

	p.OnTrigger(func(e trigger.Event) {
		a.logger.Info("event", "type", e.Type, "score", e.Score)
	})

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	if c.Port > 0 {
		srv := web.NewServer(p, a.logger)
		g.Go(func() error {
			return srv.ListenAndServe(runCtx, fmt.Sprintf(":%d", c.Port))
		})
	}
	g.Go(func() error {
		defer cancelRun()
		return p.Run(runCtx)
	})
	runErr := g.Wait()

	if err := p.Stop(context.Background(), time.Now()); err != nil {
		a.logger.Warn("stop session", "error", err)
	}
	printSummary(cmd.OutOrStdout(), id, p.Stats(), p.Events())
	return runErr
}
