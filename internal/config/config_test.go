package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, k := range []string{"DISCORD_TOKEN", "DATABASE_DSN", "DATABASE_DRIVER", "HTTP_ADDRESS", "HTTP_ALLOWED_ORIGINS", "CONFIG_FILE"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, map[string]string{"DISCORD_TOKEN": "token", "DATABASE_DSN": "postgres://localhost/duty"})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, DefaultHTTPAddress, cfg.HTTPAddress)
	assert.Equal(t, DefaultSchedule(), cfg.Schedule)
}

func TestLoadRequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"missing token", map[string]string{"DATABASE_DSN": "x"}, "DISCORD_TOKEN"},
		{"missing dsn", map[string]string{"DISCORD_TOKEN": "x"}, "DATABASE_DSN"},
		{"bad driver", map[string]string{"DISCORD_TOKEN": "x", "DATABASE_DSN": "x", "DATABASE_DRIVER": "mysql"}, "DATABASE_DRIVER"},
		{"missing file", map[string]string{"DISCORD_TOKEN": "x", "DATABASE_DSN": "x", "CONFIG_FILE": "/nonexistent/staffduty.yaml"}, "CONFIG_FILE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			_, err := Load()
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoadDatabaseSkipsToken(t *testing.T) {
	setEnv(t, map[string]string{
		"DATABASE_DSN":         "file.db",
		"DATABASE_DRIVER":      "sqlite3",
		"HTTP_ADDRESS":         "",
		"HTTP_ALLOWED_ORIGINS": "https://a.example, ,https://b.example",
	})

	cfg, err := LoadDatabase()
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.DatabaseDriver)
	assert.Empty(t, cfg.HTTPAddress, "an empty HTTP_ADDRESS disables the status API")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staffduty.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sweep_interval: 5m
weekly_day: Sunday
weekly_time: "18:30"
top_n: 5
`), 0o644))

	s, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	assert.Equal(t, 5*time.Minute, s.SweepInterval)
	assert.Equal(t, time.Minute, s.WeeklyTick, "unset keys keep their default")

	w, err := s.Weekly()
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, w.Weekday)
	assert.Equal(t, 18*time.Hour+30*time.Minute, w.At)
	assert.Equal(t, 5, w.TopN)
	assert.Equal(t, 6*time.Hour, w.CatchUpWindow)
}

func TestScheduleValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Schedule)
		wantErr bool
	}{
		{"defaults", func(*Schedule) {}, false},
		{"sweep too often", func(s *Schedule) { s.SweepInterval = time.Second }, true},
		{"bad weekday", func(s *Schedule) { s.WeeklyDay = "someday" }, true},
		{"bad time", func(s *Schedule) { s.WeeklyTime = "25:00" }, true},
		{"window shorter than tick", func(s *Schedule) { s.CatchUpWindow = 30 * time.Second }, true},
		{"no rows", func(s *Schedule) { s.TopN = 0 }, true},
		{"no marker timeout", func(s *Schedule) { s.MarkerTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSchedule()
			tt.modify(s)
			err := s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
