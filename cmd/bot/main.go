// Package main is the staffduty binary: the Discord bot plus a few
// maintenance commands that only need the database.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const appName = "staffduty"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Discord staff duty tracker",
		Long: `staffduty tracks on-duty staff in Discord guilds, closes forgotten
duty sessions and posts a weekly staff leaderboard.

Running it without a subcommand starts the bot.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), flags)
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Schedule file path (YAML), overrides CONFIG_FILE")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(runCmd(flags), migrateCmd(flags), reportCmd(flags))
	return cmd
}

// setup applies the global flags and returns the process logger
func (f *globalFlags) setup() *slog.Logger {
	if f.configPath != "" {
		os.Setenv("CONFIG_FILE", f.configPath)
	}

	var level slog.Level
	switch strings.ToLower(f.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
