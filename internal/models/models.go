package models

import (
	"errors"
	"time"
)

// Shift labels the kind of on-duty work
type Shift string

const (
	ShiftSupport Shift = "Support"
	ShiftChat    Shift = "Chat"
	ShiftPatrol  Shift = "Patrol"
)

// DefaultShift is used when a label is missing or unknown
const DefaultShift = ShiftSupport

// Shifts lists every shift in display order
var Shifts = []Shift{ShiftSupport, ShiftChat, ShiftPatrol}

// Valid reports whether s is one of the known shifts
func (s Shift) Valid() bool {
	switch s {
	case ShiftSupport, ShiftChat, ShiftPatrol:
		return true
	}
	return false
}

// Normalize maps unknown labels to DefaultShift
func (s Shift) Normalize() Shift {
	if s.Valid() {
		return s
	}
	return DefaultShift
}

const (
	MinAutoOutHours     = 1
	MaxAutoOutHours     = 48
	DefaultAutoOutHours = 6
)

// ErrInvalidAutoOutHours is returned when the threshold is outside [1,48]
var ErrInvalidAutoOutHours = errors.New("auto clock-out hours must be between 1 and 48")

// GuildConfig is the per-guild settings row
type GuildConfig struct {
	GuildID         string
	StaffRoleID     string
	OnDutyRoleID    string
	LogChannelID    string
	WeeklyChannelID string
	StaffWeekRoleID string
	AlertChannelID  string
	AutoOutHours    int
	LastWeeklyKey   string
}

// AutoOutThreshold converts the configured hours into a duration,
// falling back to the default when the stored value is out of range.
func (c GuildConfig) AutoOutThreshold() time.Duration {
	h := c.AutoOutHours
	if h < MinAutoOutHours || h > MaxAutoOutHours {
		h = DefaultAutoOutHours
	}
	return time.Duration(h) * time.Hour
}

// ActiveDuty represents a member currently on duty
type ActiveDuty struct {
	GuildID string
	UserID  string
	Start   time.Time
	Shift   Shift
}

// DutySession represents a closed duty interval
type DutySession struct {
	ID       int64
	GuildID  string
	UserID   string
	Start    time.Time
	End      time.Time
	Duration time.Duration
	Shift    Shift
}

// DutyTotal aggregates closed sessions of one member
type DutyTotal struct {
	Seconds  int64
	Sessions int64
}

// VoiceTotal aggregates daily voice stats of one member
type VoiceTotal struct {
	Seconds int64
	Joins   int64
}
