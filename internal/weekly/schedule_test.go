package weekly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerFor(t *testing.T) {
	s := DefaultSchedule()
	// Friday 2026-03-06 20:00 in UTC+3
	friday := time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"exact trigger", friday, friday},
		{"one second early", friday.Add(-time.Second), friday.AddDate(0, 0, -7)},
		{"later that evening", friday.Add(2 * time.Hour), friday},
		{"after UTC midnight local saturday", time.Date(2026, 3, 6, 22, 30, 0, 0, time.UTC), friday},
		{"thursday", time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC), friday},
		{"next friday morning", time.Date(2026, 3, 13, 6, 0, 0, 0, time.UTC), friday},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.TriggerFor(tt.now)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestDue(t *testing.T) {
	s := DefaultSchedule()
	friday := time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)

	key, ok := s.Due(friday.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, "2026-03-06", key)

	key, ok = s.Due(friday.Add(5*time.Hour + 59*time.Minute))
	require.True(t, ok)
	assert.Equal(t, "2026-03-06", key)

	_, ok = s.Due(friday.Add(6 * time.Hour))
	assert.False(t, ok)

	_, ok = s.Due(friday.Add(-time.Minute))
	assert.False(t, ok)
}

func TestScheduleValidate(t *testing.T) {
	assert.NoError(t, DefaultSchedule().Validate())

	bad := []Schedule{
		{Weekday: 9, At: time.Hour, CatchUpWindow: time.Hour, TopN: 1},
		{Weekday: time.Monday, At: 24 * time.Hour, CatchUpWindow: time.Hour, TopN: 1},
		{Weekday: time.Monday, At: time.Hour, CatchUpWindow: 0, TopN: 1},
		{Weekday: time.Monday, At: time.Hour, CatchUpWindow: time.Hour, TopN: 0},
	}
	for _, s := range bad {
		assert.Error(t, s.Validate(), "%+v", s)
	}
}
