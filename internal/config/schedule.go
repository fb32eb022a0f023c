package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"staffduty/internal/duty"
	"staffduty/internal/sweeper"
	"staffduty/internal/weekly"
)

// Schedule tunes the periodic jobs. It is read from the optional YAML file
// named by CONFIG_FILE.
type Schedule struct {
	// SweepInterval is how often stale duty entries are closed
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// WeeklyTick is how often the weekly report checks whether it is due
	WeeklyTick time.Duration `yaml:"weekly_tick"`
	// WeeklyDay is the English weekday name of the report, e.g. "friday"
	WeeklyDay string `yaml:"weekly_day"`
	// WeeklyTime is the HH:MM trigger time on the UTC+3 report clock
	WeeklyTime string `yaml:"weekly_time"`
	// CatchUpWindow bounds how late a missed report may still go out
	CatchUpWindow time.Duration `yaml:"catch_up_window"`
	TopN          int           `yaml:"top_n"`
	// MarkerTimeout bounds a single role change
	MarkerTimeout time.Duration `yaml:"marker_timeout"`
}

// DefaultSchedule returns a Schedule with sensible defaults
func DefaultSchedule() *Schedule {
	return &Schedule{
		SweepInterval: sweeper.DefaultInterval,
		WeeklyTick:    weekly.DefaultTick,
		WeeklyDay:     "friday",
		WeeklyTime:    "20:00",
		CatchUpWindow: weekly.DefaultCatchUpWindow,
		TopN:          weekly.DefaultTopN,
		MarkerTimeout: duty.DefaultMarkerTimeout,
	}
}

// LoadFromFile loads the schedule from a YAML file over the defaults
func LoadFromFile(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	schedule := DefaultSchedule()
	if err := yaml.Unmarshal(data, schedule); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return schedule, nil
}

// Validate checks that the schedule is usable
func (s *Schedule) Validate() error {
	if s.SweepInterval < time.Minute {
		return fmt.Errorf("sweep_interval must be at least 1m")
	}
	if s.WeeklyTick < time.Second || s.WeeklyTick > time.Hour {
		return fmt.Errorf("weekly_tick must be between 1s and 1h")
	}
	if s.MarkerTimeout <= 0 {
		return fmt.Errorf("marker_timeout must be positive")
	}
	w, err := s.Weekly()
	if err != nil {
		return err
	}
	if s.CatchUpWindow <= s.WeeklyTick {
		return fmt.Errorf("catch_up_window must be longer than weekly_tick")
	}
	return w.Validate()
}

// Weekly converts the file settings into the report schedule
func (s *Schedule) Weekly() (weekly.Schedule, error) {
	day, err := parseWeekday(s.WeeklyDay)
	if err != nil {
		return weekly.Schedule{}, err
	}
	at, err := parseClock(s.WeeklyTime)
	if err != nil {
		return weekly.Schedule{}, err
	}
	return weekly.Schedule{
		Weekday:       day,
		At:            at,
		CatchUpWindow: s.CatchUpWindow,
		TopN:          s.TopN,
	}, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(name)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("weekly_day %q is not a weekday", name)
}

func parseClock(hhmm string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return 0, fmt.Errorf("weekly_time %q must be HH:MM", hhmm)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
