package duty

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"staffduty/internal/models"
	"staffduty/pkg/utils"
)

// Marker grants and revokes the on-duty role on the platform. Errors are
// ErrDenied, ErrMemberNotFound or transport failures.
type Marker interface {
	Grant(ctx context.Context, guildID, userID, roleID string) error
	Revoke(ctx context.Context, guildID, userID, roleID string) error
}

// Notifier posts operational lines to a guild's log channel
type Notifier interface {
	Notify(ctx context.Context, cfg models.GuildConfig, text string)
}

// NopNotifier discards notifications
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, models.GuildConfig, string) {}

// DefaultMarkerTimeout bounds a single marker call
const DefaultMarkerTimeout = 10 * time.Second

// Desk keeps the duty ledger and the on-duty marker in step for manual
// sign-in and sign-out.
type Desk struct {
	machine  *Machine
	marker   Marker
	notifier Notifier
	logger   *slog.Logger
	timeout  time.Duration
}

// NewDesk wires a Desk. Nil notifier and logger get defaults.
func NewDesk(machine *Machine, marker Marker, notifier Notifier, logger *slog.Logger, timeout time.Duration) *Desk {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultMarkerTimeout
	}
	return &Desk{machine: machine, marker: marker, notifier: notifier, logger: logger, timeout: timeout}
}

// RequireDutyRoles checks the settings sign-in and sign-out depend on
func RequireDutyRoles(cfg models.GuildConfig) error {
	if cfg.StaffRoleID == "" {
		return &ConfigMissingError{Field: "staff_role_id"}
	}
	if cfg.OnDutyRoleID == "" {
		return &ConfigMissingError{Field: "onduty_role_id"}
	}
	return nil
}

// SignIn opens a duty entry and grants the marker. If the grant fails the
// entry is dropped again so the ledger never shows a member the platform
// does not.
func (d *Desk) SignIn(ctx context.Context, cfg models.GuildConfig, userID string, shift models.Shift) (models.ActiveDuty, error) {
	if err := RequireDutyRoles(cfg); err != nil {
		return models.ActiveDuty{}, err
	}
	entry, err := d.machine.Begin(ctx, cfg.GuildID, userID, shift)
	if err != nil {
		return models.ActiveDuty{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.marker.Grant(callCtx, cfg.GuildID, userID, cfg.OnDutyRoleID); err != nil {
		if _, derr := d.machine.Discard(ctx, cfg.GuildID, userID); derr != nil {
			d.logger.Error("Failed to roll back duty entry",
				slog.String("guild", cfg.GuildID), slog.String("user", userID), slog.String("error", derr.Error()))
		}
		return models.ActiveDuty{}, fmt.Errorf("failed to grant on-duty role: %w", err)
	}

	d.logger.Info("Duty in", slog.String("guild", cfg.GuildID), slog.String("user", userID), slog.String("shift", string(shift)))
	d.notifier.Notify(ctx, cfg, fmt.Sprintf("🟢 **Duty IN**: %s | shift=%s | %s",
		utils.FormatUserMention(userID), shift, utils.FormatTimestamp(entry.Start.Unix())))
	return entry, nil
}

// SignOut revokes the marker, then closes the session. A refused revoke
// leaves the entry open.
func (d *Desk) SignOut(ctx context.Context, cfg models.GuildConfig, userID string) (time.Duration, error) {
	if err := RequireDutyRoles(cfg); err != nil {
		return 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.marker.Revoke(callCtx, cfg.GuildID, userID, cfg.OnDutyRoleID); err != nil {
		return 0, fmt.Errorf("failed to revoke on-duty role: %w", err)
	}

	dur, err := d.machine.End(ctx, cfg.GuildID, userID)
	if err != nil {
		return 0, err
	}

	d.logger.Info("Duty out", slog.String("guild", cfg.GuildID), slog.String("user", userID), slog.Duration("duration", dur))
	d.notifier.Notify(ctx, cfg, fmt.Sprintf("🔴 **Duty OUT**: %s | duration: **%s**",
		utils.FormatUserMention(userID), utils.FormatSpan(dur)))
	return dur, nil
}

// Machine exposes the underlying state machine
func (d *Desk) Machine() *Machine {
	return d.machine
}
