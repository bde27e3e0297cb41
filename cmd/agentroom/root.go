package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentroom/config"
	"github.com/hupe1980/agentroom/logging"
)

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "agentroom",
		Short: "Multi-agent conversation server",
		Long: `agentroom runs scenario driven conversations between LLM agents and
human participants. Clients connect over a websocket (/ws/<user>) or post
to /cli/events, type "start" and pick a configuration.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("AGENTROOM_CONFIG"), "server configuration file")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	rootCmd.AddCommand(
		newServeCmd(load),
		newChatCmd(),
		newValidateCmd(load),
	)
	return rootCmd
}

// newLogger builds the configured logger. The returned function flushes it.
func newLogger(cfg config.LogConfig) (logging.Logger, func(), error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	switch cfg.Backend {
	case "slog":
		format := cfg.Format
		if format == "console" {
			format = "text"
		}
		return logging.NewSlog(logging.SlogConfig{Level: level, Format: format, Output: os.Stderr}), func() {}, nil
	default:
		z, err := logging.NewZap(level, cfg.Format)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create logger: %w", err)
		}
		return z, func() { _ = z.Sync() }, nil
	}
}
