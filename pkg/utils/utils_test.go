package utils_test

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"staffduty/pkg/utils"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{-5, "0m"},
		{0, "0m"},
		{59, "0m"},
		{60, "1m"},
		{3599, "59m"},
		{3600, "1h 0m"},
		{3661, "1h 1m"},
		{26 * 3600, "26h 0m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, utils.FormatDuration(tt.seconds), "FormatDuration(%d)", tt.seconds)
	}
	assert.Equal(t, "1h 30m", utils.FormatSpan(90*time.Minute))
}

func TestDayKeyUsesFixedOffset(t *testing.T) {
	// 21:30 UTC is already the next day at UTC+3.
	at := time.Date(2026, 3, 5, 21, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-06", utils.DayKey(at))

	// 20:59:59 UTC is still the same day.
	assert.Equal(t, "2026-03-05", utils.DayKey(at.Add(-31*time.Minute-time.Second)))
}

func TestDayKeyIgnoresInputLocation(t *testing.T) {
	instant := time.Date(2026, 3, 5, 22, 15, 0, 0, time.UTC)
	want := utils.DayKey(instant)

	for _, name := range []string{"America/Los_Angeles", "Asia/Tokyo", "Pacific/Kiritimati"} {
		loc, err := time.LoadLocation(name)
		if err != nil {
			t.Skipf("tzdata unavailable: %v", err)
		}
		assert.Equal(t, want, utils.DayKey(instant.In(loc)), name)
	}
}

// TestDayKeyAcrossProcessTimezones re-runs the test binary under a different
// TZ and compares the day key it prints for the same instant.
func TestDayKeyAcrossProcessTimezones(t *testing.T) {
	instant := time.Date(2026, 3, 5, 22, 15, 0, 0, time.UTC)
	if os.Getenv("DAYKEY_CHILD") == "1" {
		_, _ = os.Stdout.WriteString("DAYKEY=" + utils.DayKey(time.Unix(instant.Unix(), 0)) + "\n")
		return
	}

	for _, tz := range []string{"UTC", "America/New_York", "Asia/Kolkata"} {
		cmd := exec.Command(os.Args[0], "-test.run", "^TestDayKeyAcrossProcessTimezones$")
		cmd.Env = append(os.Environ(), "DAYKEY_CHILD=1", "TZ="+tz)
		out, err := cmd.Output()
		if err != nil {
			t.Fatalf("child with TZ=%s: %v", tz, err)
		}
		assert.Contains(t, string(out), "DAYKEY=2026-03-06", tz)
	}
}

func TestParseDayKey(t *testing.T) {
	got, err := utils.ParseDayKey("2026-03-06")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC), got.UTC())
}

func TestCompareSnowflakes(t *testing.T) {
	assert.Equal(t, -1, utils.CompareSnowflakes("99", "100"))
	assert.Equal(t, 1, utils.CompareSnowflakes("200", "100"))
	assert.Equal(t, 0, utils.CompareSnowflakes("123", "123"))
}

func TestMentions(t *testing.T) {
	assert.Equal(t, "<@42>", utils.FormatUserMention("42"))
	assert.Equal(t, "<@&7>", utils.FormatRoleMention("7"))
	assert.Equal(t, "<#9>", utils.FormatChannelMention("9"))
	assert.Equal(t, "🥇", utils.FormatRank(1))
	assert.Equal(t, "**4)**", utils.FormatRank(4))
	assert.Equal(t, "abc...", utils.TruncateString("abcdefgh", 6))
	assert.Equal(t, "abc", utils.TruncateString("abc", 6))
}
