// Package sweeper force-closes duty entries that outlived the guild's
// auto clock-out threshold.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"staffduty/internal/duty"
	"staffduty/internal/models"
	"staffduty/pkg/lifecycle"
	"staffduty/pkg/utils"
)

// DefaultInterval is how often a sweep runs
const DefaultInterval = 10 * time.Minute

// Guilds lists the guild settings to sweep
type Guilds interface {
	ListGuildConfigs(ctx context.Context) ([]models.GuildConfig, error)
}

// Members resolves whether a user is still part of a guild
type Members interface {
	Exists(ctx context.Context, guildID, userID string) (bool, error)
}

// Observer receives a summary of each pass
type Observer interface {
	SweepFinished(closed, discarded, failed int, took time.Duration)
}

// Result summarizes one sweep
type Result struct {
	Closed    int
	Discarded int
	Failed    int
}

// Sweeper closes stale duty entries
type Sweeper struct {
	guilds   Guilds
	machine  *duty.Machine
	members  Members
	marker   duty.Marker
	notifier duty.Notifier
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
	timeout  time.Duration
}

// Options configures a Sweeper; zero values get defaults
type Options struct {
	Notifier      duty.Notifier
	Observer      Observer
	Logger        *slog.Logger
	Now           func() time.Time
	MarkerTimeout time.Duration
}

// New creates a sweeper
func New(guilds Guilds, machine *duty.Machine, members Members, marker duty.Marker, opts Options) *Sweeper {
	s := &Sweeper{
		guilds:   guilds,
		machine:  machine,
		members:  members,
		marker:   marker,
		notifier: opts.Notifier,
		observer: opts.Observer,
		logger:   opts.Logger,
		now:      opts.Now,
		timeout:  opts.MarkerTimeout,
	}
	if s.notifier == nil {
		s.notifier = duty.NopNotifier{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.timeout <= 0 {
		s.timeout = duty.DefaultMarkerTimeout
	}
	return s
}

// Run sweeps every interval until the handle shuts down
func (s *Sweeper) Run(h *lifecycle.Handle, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s.logger.Info("Auto clock-out running", slog.Duration("interval", interval))
	h.Tick(interval, func(ctx context.Context) {
		s.Sweep(ctx)
	})
}

// Sweep runs one pass over every guild. Errors are logged per guild and
// per member; one failure never stops the rest.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	started := time.Now()
	var total Result

	configs, err := s.guilds.ListGuildConfigs(ctx)
	if err != nil {
		s.logger.Error("Failed to list guilds for auto clock-out", slog.String("error", err.Error()))
		return total
	}

	for _, cfg := range configs {
		r := s.sweepGuild(ctx, cfg)
		total.Closed += r.Closed
		total.Discarded += r.Discarded
		total.Failed += r.Failed
	}

	if s.observer != nil {
		s.observer.SweepFinished(total.Closed, total.Discarded, total.Failed, time.Since(started))
	}
	return total
}

func (s *Sweeper) sweepGuild(ctx context.Context, cfg models.GuildConfig) Result {
	var r Result
	log := s.logger.With(slog.String("guild", cfg.GuildID))

	if cfg.OnDutyRoleID == "" {
		log.Debug("Skipping auto clock-out", slog.String("reason", (&duty.ConfigMissingError{Field: "onduty_role_id"}).Error()))
		return r
	}

	entries, err := s.machine.Active(ctx, cfg.GuildID)
	if err != nil {
		log.Error("Failed to list active duty", slog.String("error", err.Error()))
		r.Failed++
		return r
	}

	limit := cfg.AutoOutThreshold()
	now := s.now()
	for _, e := range entries {
		if now.Sub(e.Start) < limit {
			continue
		}
		switch err := s.clockOut(ctx, cfg, e, limit); {
		case err == nil:
			r.Closed++
		case errors.Is(err, duty.ErrMemberNotFound):
			r.Discarded++
		case errors.Is(err, duty.ErrNotActive):
			// closed by a manual sign-out since we listed it
		default:
			r.Failed++
			log.Warn("Auto clock-out failed", slog.String("user", e.UserID), slog.String("error", err.Error()))
		}
	}
	return r
}

// clockOut handles one stale entry. ErrMemberNotFound means the entry was
// discarded without a session.
func (s *Sweeper) clockOut(ctx context.Context, cfg models.GuildConfig, e models.ActiveDuty, limit time.Duration) error {
	exists, err := s.members.Exists(ctx, cfg.GuildID, e.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve member: %w", err)
	}
	if !exists {
		return s.discard(ctx, cfg, e)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err = s.marker.Revoke(callCtx, cfg.GuildID, e.UserID, cfg.OnDutyRoleID)
	cancel()
	if errors.Is(err, duty.ErrMemberNotFound) {
		return s.discard(ctx, cfg, e)
	}
	if err != nil {
		s.notifier.Notify(ctx, cfg, fmt.Sprintf("⚠️ Auto clock-out failed for %s: %v", utils.FormatUserMention(e.UserID), err))
		return fmt.Errorf("failed to revoke on-duty role: %w", err)
	}

	session, err := s.machine.ForceEnd(ctx, cfg.GuildID, e.UserID)
	if err != nil {
		return err
	}

	s.logger.Info("Auto clock-out",
		slog.String("guild", cfg.GuildID), slog.String("user", e.UserID),
		slog.String("shift", string(session.Shift)), slog.Duration("duration", session.Duration))
	s.notifier.Notify(ctx, cfg, fmt.Sprintf("⏲️ **Auto Clock-Out**: %s | shift=%s | duration: **%s** (limit %dh)",
		utils.FormatUserMention(e.UserID), session.Shift, utils.FormatSpan(session.Duration), int(limit/time.Hour)))
	return nil
}

func (s *Sweeper) discard(ctx context.Context, cfg models.GuildConfig, e models.ActiveDuty) error {
	if _, err := s.machine.Discard(ctx, cfg.GuildID, e.UserID); err != nil {
		return err
	}
	s.logger.Warn("Dropped duty entry of departed member",
		slog.String("guild", cfg.GuildID), slog.String("user", e.UserID), slog.Time("start", e.Start))
	return duty.ErrMemberNotFound
}
