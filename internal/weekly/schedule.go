package weekly

import (
	"fmt"
	"time"

	"staffduty/pkg/utils"
)

const (
	DefaultTick          = time.Minute
	DefaultCatchUpWindow = 6 * time.Hour
	DefaultTopN          = 10
)

// Schedule describes when the weekly report fires on the report clock
type Schedule struct {
	Weekday time.Weekday
	// At is the offset from midnight of the trigger moment
	At time.Duration
	// CatchUpWindow is how long after the trigger a missed report may
	// still be emitted
	CatchUpWindow time.Duration
	TopN          int
}

// DefaultSchedule fires on Friday at 20:00
func DefaultSchedule() Schedule {
	return Schedule{
		Weekday:       time.Friday,
		At:            20 * time.Hour,
		CatchUpWindow: DefaultCatchUpWindow,
		TopN:          DefaultTopN,
	}
}

// Validate checks the schedule ranges
func (s Schedule) Validate() error {
	if s.Weekday < time.Sunday || s.Weekday > time.Saturday {
		return fmt.Errorf("invalid weekday %d", s.Weekday)
	}
	if s.At < 0 || s.At >= 24*time.Hour {
		return fmt.Errorf("trigger time %s is outside the day", s.At)
	}
	if s.CatchUpWindow <= 0 || s.CatchUpWindow > 7*24*time.Hour {
		return fmt.Errorf("catch-up window %s must be positive and at most a week", s.CatchUpWindow)
	}
	if s.TopN < 1 {
		return fmt.Errorf("top_n must be at least 1, got %d", s.TopN)
	}
	return nil
}

// TriggerFor returns the most recent trigger moment at or before now, in
// the report zone.
func (s Schedule) TriggerFor(now time.Time) time.Time {
	local := utils.InReportZone(now)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, utils.ReportZone)
	back := (int(local.Weekday()) - int(s.Weekday) + 7) % 7
	t := midnight.AddDate(0, 0, -back).Add(s.At)
	if t.After(local) {
		t = t.AddDate(0, 0, -7)
	}
	return t
}

// Due returns the week key when now falls inside the catch-up window of a
// trigger moment.
func (s Schedule) Due(now time.Time) (string, bool) {
	t := s.TriggerFor(now)
	if now.Sub(t) >= s.CatchUpWindow {
		return "", false
	}
	return utils.DayKey(t), true
}

// WeekKey is the key of the week a report built at now belongs to
func (s Schedule) WeekKey(now time.Time) string {
	return utils.DayKey(s.TriggerFor(now))
}
