package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-emotisense/internal/config"
	"github.com/teslashibe/go-emotisense/internal/log"
)

var (
	configPath string
	logLevel   string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "emotisense",
	Short: "Real-time affective state monitoring",
	Long: `emotisense fuses facial expression and vocal stress into stress,
engagement and confusion scores once per second, fires events when they
cross thresholds and keeps per-session statistics.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $EMOTISENSE_CONFIG or config/$CONFIG_ENV/emotisense.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, file, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		if _, err := log.ParseLevel(logLevel); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		loaded.LogLevel = logLevel
	}
	log.Init(loaded.LogLevel)
	if file != "" {
		log.Debug("config loaded", "file", file)
	}
	cfg = loaded
	return nil
}
