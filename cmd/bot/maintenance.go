package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"staffduty/internal/activity"
	"staffduty/internal/config"
	"staffduty/internal/database"
	"staffduty/internal/duty"
	"staffduty/internal/weekly"
	"staffduty/pkg/utils"
)

func migrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := flags.setup()

			cfg, err := config.LoadDatabase()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			if err := db.Close(); err != nil {
				return fmt.Errorf("failed to close database: %w", err)
			}
			logger.Info("Schema is up to date", slog.String("driver", cfg.DatabaseDriver))
			return nil
		},
	}
}

func reportCmd(flags *globalFlags) *cobra.Command {
	var (
		guildID string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a guild's current weekly standings without posting them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := flags.setup()

			cfg, err := config.LoadDatabase()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			schedule, err := cfg.Schedule.Weekly()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer db.Close()
			repository := database.NewRepository(db)

			scheduler := weekly.New(repository, duty.NewMachine(repository, nil), activity.New(repository, nil), nil,
				weekly.Options{Schedule: schedule, Logger: logger})
			report, err := scheduler.Build(cmd.Context(), guildID, time.Now())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&guildID, "guild", "g", "", "Guild ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	_ = cmd.MarkFlagRequired("guild")
	return cmd
}

func printReport(w io.Writer, report weekly.Report) {
	fmt.Fprintf(w, "Week of %s (since %s)\n", report.WeekKey, report.SinceDay)
	if report.Empty() {
		fmt.Fprintln(w, "No activity recorded.")
		return
	}
	for i, row := range report.Rows {
		fmt.Fprintf(w, "%2d. %s  %d pts  duty %s (%d)  msgs %d  voice %s (%d joins)\n",
			i+1, row.UserID, row.Points,
			utils.FormatDuration(row.DutySeconds), row.Sessions,
			row.Messages,
			utils.FormatDuration(row.VoiceSeconds), row.VoiceJoins)
	}
}
