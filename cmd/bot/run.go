package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"staffduty/internal/activity"
	"staffduty/internal/api"
	"staffduty/internal/config"
	"staffduty/internal/database"
	"staffduty/internal/discord"
	"staffduty/internal/duty"
	"staffduty/internal/metrics"
	"staffduty/internal/sweeper"
	"staffduty/internal/weekly"
	"staffduty/pkg/lifecycle"
)

// drainTimeout bounds how long background services get to stop
const drainTimeout = 10 * time.Second

func runCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), flags)
		},
	}
}

func runBot(parent context.Context, flags *globalFlags) error {
	logger := flags.setup()

	cfg, err := config.Load()
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

	m := metrics.New()
	machine := duty.NewMachine(repository, nil)
	agg := activity.New(repository, m)

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}
	platform := discord.NewPlatform(session, logger)

	desk := duty.NewDesk(machine, platform, platform, logger, cfg.Schedule.MarkerTimeout)
	scheduler := weekly.New(repository, machine, agg, platform, weekly.Options{
		Schedule: schedule,
		Observer: m,
		Logger:   logger,
	})
	sw := sweeper.New(repository, machine, platform, platform, sweeper.Options{
		Notifier:      platform,
		Observer:      m,
		Logger:        logger,
		MarkerTimeout: cfg.Schedule.MarkerTimeout,
	})

	bot := discord.New(session, platform, discord.Deps{
		Repository: repository,
		Desk:       desk,
		Activity:   agg,
		Weekly:     scheduler,
		Observer:   m,
		Logger:     logger,
	})
	if err := bot.Start(); err != nil {
		return fmt.Errorf("failed to start bot: %w", err)
	}
	defer bot.Stop()

	manager := lifecycle.NewManager(logger)
	if err := manager.Go("sweeper", func(h *lifecycle.Handle) {
		sw.Run(h, cfg.Schedule.SweepInterval)
	}); err != nil {
		return err
	}
	if err := manager.Go("weekly", func(h *lifecycle.Handle) {
		scheduler.Run(h, cfg.Schedule.WeeklyTick)
	}); err != nil {
		return err
	}
	if cfg.HTTPAddress != "" {
		gin.SetMode(gin.ReleaseMode)
		router := api.NewRouter(api.Options{
			Store:          repository,
			Standings:      scheduler,
			Metrics:        m.Handler(),
			AllowedOrigins: cfg.AllowedOrigins,
			Logger:         logger,
		})
		if err := manager.Go("status-api", api.NewServer(cfg.HTTPAddress, router, logger).Run); err != nil {
			return err
		}
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Bot is running", slog.String("driver", cfg.DatabaseDriver))
	<-ctx.Done()

	logger.Info("Shutting down bot...")
	manager.Shutdown()
	if stragglers := manager.WaitWithTimeout(drainTimeout); len(stragglers) > 0 {
		logger.Warn("Services did not stop in time", slog.Any("services", stragglers))
	}
	return nil
}
