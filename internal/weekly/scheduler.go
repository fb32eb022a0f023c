// Package weekly builds the weekly staff standings and emits them once per
// week per guild.
package weekly

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"staffduty/internal/activity"
	"staffduty/internal/duty"
	"staffduty/internal/models"
	"staffduty/internal/scoring"
	"staffduty/pkg/lifecycle"
	"staffduty/pkg/utils"
)

// Result labels passed to the Observer
const (
	ResultPublished = "published"
	ResultEmpty     = "empty"
	ResultFailed    = "failed"
)

// Store holds the per-guild settings, including the last emitted week key
type Store interface {
	ListGuildConfigs(ctx context.Context) ([]models.GuildConfig, error)
	GuildConfig(ctx context.Context, guildID string) (models.GuildConfig, error)
	SetLastWeeklyKey(ctx context.Context, guildID, key string) error
}

// Publisher moves the Staff of the Week role and posts the report.
// AssignWinner must be idempotent.
type Publisher interface {
	AssignWinner(ctx context.Context, cfg models.GuildConfig, winnerID string) error
	PublishReport(ctx context.Context, cfg models.GuildConfig, report Report) error
}

// Observer is told the outcome of each guild report
type Observer interface {
	ReportFinished(result string)
}

// Report is one guild's standings over the trailing week
type Report struct {
	GuildID   string        `json:"guildId"`
	WeekKey   string        `json:"weekKey"`
	Since     time.Time     `json:"since"`
	SinceDay  string        `json:"sinceDay"`
	Generated time.Time     `json:"generated"`
	Rows      []scoring.Row `json:"rows"`
	Top       []scoring.Row `json:"top"`
}

// Empty reports whether no member had any activity
func (r Report) Empty() bool {
	return len(r.Rows) == 0
}

// Winner returns the first ranked member
func (r Report) Winner() (scoring.Row, bool) {
	if len(r.Rows) == 0 {
		return scoring.Row{}, false
	}
	return r.Rows[0], true
}

// Scheduler emits weekly reports. It keeps no state of its own; the last
// emitted week of every guild lives in the store.
type Scheduler struct {
	store     Store
	machine   *duty.Machine
	activity  *activity.Aggregator
	publisher Publisher
	schedule  Schedule
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

// Options configures a Scheduler; zero values get defaults
type Options struct {
	Schedule Schedule
	Observer Observer
	Logger   *slog.Logger
	Now      func() time.Time
}

// New creates a scheduler
func New(store Store, machine *duty.Machine, agg *activity.Aggregator, publisher Publisher, opts Options) *Scheduler {
	s := &Scheduler{
		store:     store,
		machine:   machine,
		activity:  agg,
		publisher: publisher,
		schedule:  opts.Schedule,
		observer:  opts.Observer,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if s.schedule == (Schedule{}) {
		s.schedule = DefaultSchedule()
	}
	if s.schedule.TopN <= 0 {
		s.schedule.TopN = DefaultTopN
	}
	if s.schedule.CatchUpWindow <= 0 {
		s.schedule.CatchUpWindow = DefaultCatchUpWindow
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Schedule returns the effective schedule
func (s *Scheduler) Schedule() Schedule {
	return s.schedule
}

// Run checks for a due report every interval until shutdown
func (s *Scheduler) Run(h *lifecycle.Handle, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTick
	}
	s.logger.Info("Weekly scheduler running",
		slog.String("weekday", s.schedule.Weekday.String()),
		slog.Duration("at", s.schedule.At),
		slog.Duration("catch_up", s.schedule.CatchUpWindow))
	s.Tick(h.Ctx())
	h.Tick(interval, func(ctx context.Context) {
		s.Tick(ctx)
	})
}

// Tick emits the report of every guild that has not completed the current
// week. It returns the number of guilds whose report completed.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.now()
	weekKey, due := s.schedule.Due(now)
	if !due {
		return 0
	}

	configs, err := s.store.ListGuildConfigs(ctx)
	if err != nil {
		s.logger.Error("Failed to list guilds for weekly report", slog.String("error", err.Error()))
		return 0
	}

	done := 0
	for _, cfg := range configs {
		if cfg.LastWeeklyKey == weekKey {
			continue
		}
		log := s.logger.With(slog.String("guild", cfg.GuildID), slog.String("week", weekKey))
		if err := RequireWeekly(cfg); err != nil {
			log.Debug("Skipping weekly report", slog.String("reason", err.Error()))
			continue
		}

		report, err := s.build(ctx, cfg.GuildID, now, weekKey)
		if err != nil {
			log.Error("Failed to build weekly report", slog.String("error", err.Error()))
			s.finished(ResultFailed)
			continue
		}
		if err := s.Publish(ctx, cfg, report); err != nil {
			log.Error("Failed to emit weekly report", slog.String("error", err.Error()))
			s.finished(ResultFailed)
			continue
		}
		if err := s.store.SetLastWeeklyKey(ctx, cfg.GuildID, weekKey); err != nil {
			log.Error("Failed to persist weekly key", slog.String("error", err.Error()))
			s.finished(ResultFailed)
			continue
		}

		if report.Empty() {
			s.finished(ResultEmpty)
			log.Info("Weekly report emitted without data")
		} else {
			s.finished(ResultPublished)
			winner, _ := report.Winner()
			log.Info("Weekly report emitted", slog.String("winner", winner.UserID), slog.Int64("points", winner.Points))
		}
		done++
	}
	return done
}

// Build computes the standings of a guild at now without emitting them
func (s *Scheduler) Build(ctx context.Context, guildID string, now time.Time) (Report, error) {
	return s.build(ctx, guildID, now, s.schedule.WeekKey(now))
}

func (s *Scheduler) build(ctx context.Context, guildID string, now time.Time, weekKey string) (Report, error) {
	since := now.Add(-7 * 24 * time.Hour)
	sinceDay := utils.DayKey(now.Add(-6 * 24 * time.Hour))

	dutyTotals, err := s.machine.WeeklyTotals(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}
	messages, err := s.activity.WeeklyMessages(ctx, guildID, sinceDay)
	if err != nil {
		return Report{}, err
	}
	voice, err := s.activity.WeeklyVoice(ctx, guildID, sinceDay)
	if err != nil {
		return Report{}, err
	}

	rows := scoring.Build(dutyTotals, messages, voice)
	top := rows
	if len(top) > s.schedule.TopN {
		top = top[:s.schedule.TopN]
	}
	return Report{
		GuildID:   guildID,
		WeekKey:   weekKey,
		Since:     since.UTC(),
		SinceDay:  sinceDay,
		Generated: now.UTC(),
		Rows:      rows,
		Top:       top,
	}, nil
}

// Publish moves the winner role, then posts the report. An empty report is
// posted without touching roles.
func (s *Scheduler) Publish(ctx context.Context, cfg models.GuildConfig, report Report) error {
	if winner, ok := report.Winner(); ok {
		if err := s.publisher.AssignWinner(ctx, cfg, winner.UserID); err != nil {
			return fmt.Errorf("failed to assign staff of the week: %w", err)
		}
	}
	if err := s.publisher.PublishReport(ctx, cfg, report); err != nil {
		return fmt.Errorf("failed to publish weekly report: %w", err)
	}
	return nil
}

// EmitNow builds and emits the current standings of a guild without
// recording the week as done.
func (s *Scheduler) EmitNow(ctx context.Context, guildID string) (Report, error) {
	cfg, err := s.store.GuildConfig(ctx, guildID)
	if err != nil {
		return Report{}, err
	}
	if err := RequireWeekly(cfg); err != nil {
		return Report{}, err
	}
	report, err := s.Build(ctx, guildID, s.now())
	if err != nil {
		return Report{}, err
	}
	if err := s.Publish(ctx, cfg, report); err != nil {
		return Report{}, err
	}
	return report, nil
}

// RequireWeekly checks the settings the weekly report depends on
func RequireWeekly(cfg models.GuildConfig) error {
	if cfg.WeeklyChannelID == "" {
		return &duty.ConfigMissingError{Field: "weekly_channel_id"}
	}
	if cfg.StaffWeekRoleID == "" {
		return &duty.ConfigMissingError{Field: "staff_week_role_id"}
	}
	return nil
}

func (s *Scheduler) finished(result string) {
	if s.observer != nil {
		s.observer.ReportFinished(result)
	}
}
