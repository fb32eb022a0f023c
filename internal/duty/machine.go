// Package duty implements the on-duty lifecycle: one active entry per
// guild member, closed into an append-only session history.
package duty

import (
	"context"
	"fmt"
	"time"

	"staffduty/internal/models"
)

// Store is the persistence the state machine needs
type Store interface {
	InsertActiveDuty(ctx context.Context, entry models.ActiveDuty) (bool, error)
	ListActiveDuty(ctx context.Context, guildID string) ([]models.ActiveDuty, error)
	DeleteActiveDuty(ctx context.Context, guildID, userID string) (bool, error)
	CloseDuty(ctx context.Context, guildID, userID string, end time.Time, allowMissing bool) (models.DutySession, bool, error)
	DutyTotalsSince(ctx context.Context, guildID string, since time.Time) (map[string]models.DutyTotal, error)
}

// Machine opens and closes duty entries
type Machine struct {
	store Store
	now   func() time.Time
}

// NewMachine creates a state machine. A nil clock uses time.Now.
func NewMachine(store Store, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{store: store, now: now}
}

// Begin puts a member on duty. It fails with ErrAlreadyActive, leaving
// the existing entry untouched, when one is open.
func (m *Machine) Begin(ctx context.Context, guildID, userID string, shift models.Shift) (models.ActiveDuty, error) {
	if !shift.Valid() {
		return models.ActiveDuty{}, fmt.Errorf("%w: %q", ErrInvalidShift, shift)
	}
	entry := models.ActiveDuty{
		GuildID: guildID,
		UserID:  userID,
		Start:   m.now().UTC().Truncate(time.Second),
		Shift:   shift,
	}
	inserted, err := m.store.InsertActiveDuty(ctx, entry)
	if err != nil {
		return models.ActiveDuty{}, err
	}
	if !inserted {
		return models.ActiveDuty{}, ErrAlreadyActive
	}
	return entry, nil
}

// End closes the member's entry into a session and returns its length.
// Without an entry a zero-length session is still recorded so the ledger
// matches a marker that was removed by hand.
func (m *Machine) End(ctx context.Context, guildID, userID string) (time.Duration, error) {
	s, _, err := m.store.CloseDuty(ctx, guildID, userID, m.now(), true)
	if err != nil {
		return 0, err
	}
	return s.Duration, nil
}

// ForceEnd closes the entry like End but returns ErrNotActive, writing
// nothing, when the entry is already gone.
func (m *Machine) ForceEnd(ctx context.Context, guildID, userID string) (models.DutySession, error) {
	s, found, err := m.store.CloseDuty(ctx, guildID, userID, m.now(), false)
	if err != nil {
		return models.DutySession{}, err
	}
	if !found {
		return models.DutySession{}, ErrNotActive
	}
	return s, nil
}

// Discard drops the entry without recording a session
func (m *Machine) Discard(ctx context.Context, guildID, userID string) (bool, error) {
	return m.store.DeleteActiveDuty(ctx, guildID, userID)
}

// Active returns every open entry of the guild, oldest first
func (m *Machine) Active(ctx context.Context, guildID string) ([]models.ActiveDuty, error) {
	return m.store.ListActiveDuty(ctx, guildID)
}

// ListActive groups open entries by shift. Every known shift has a key;
// unknown stored labels fall under the default shift.
func (m *Machine) ListActive(ctx context.Context, guildID string) (map[models.Shift][]models.ActiveDuty, error) {
	entries, err := m.store.ListActiveDuty(ctx, guildID)
	if err != nil {
		return nil, err
	}
	byShift := make(map[models.Shift][]models.ActiveDuty, len(models.Shifts))
	for _, s := range models.Shifts {
		byShift[s] = nil
	}
	for _, e := range entries {
		s := e.Shift.Normalize()
		byShift[s] = append(byShift[s], e)
	}
	return byShift, nil
}

// WeeklyTotals sums the sessions that ended at or after since
func (m *Machine) WeeklyTotals(ctx context.Context, guildID string, since time.Time) (map[string]models.DutyTotal, error) {
	return m.store.DutyTotalsSince(ctx, guildID, since)
}
