package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"

	"staffduty/internal/database"
)

// DefaultHTTPAddress is where the status API listens unless overridden
const DefaultHTTPAddress = ":8080"

// Config holds all configuration for our application
type Config struct {
	DiscordToken   string
	DatabaseDSN    string
	DatabaseDriver string
	// HTTPAddress is empty when the status API is disabled
	HTTPAddress string
	// AllowedOrigins enables CORS on the status API for these origins
	AllowedOrigins []string
	ConfigFile     string
	Schedule       *Schedule
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return load(true)
}

// LoadDatabase loads only what is needed to reach the store, for commands
// that never connect to Discord.
func LoadDatabase() (*Config, error) {
	return load(false)
}

func load(requireToken bool) (*Config, error) {
	// .env file is optional, continue with environment variables
	_ = godotenv.Load()

	config := &Config{
		DiscordToken:   os.Getenv("DISCORD_TOKEN"),
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),
		DatabaseDriver: os.Getenv("DATABASE_DRIVER"),
		HTTPAddress:    DefaultHTTPAddress,
		ConfigFile:     os.Getenv("CONFIG_FILE"),
	}
	if addr, ok := os.LookupEnv("HTTP_ADDRESS"); ok {
		config.HTTPAddress = addr
	}
	for _, origin := range strings.Split(os.Getenv("HTTP_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			config.AllowedOrigins = append(config.AllowedOrigins, origin)
		}
	}
	if config.DatabaseDriver == "" {
		config.DatabaseDriver = database.DriverPostgres
	}

	if requireToken && config.DiscordToken == "" {
		return nil, &ConfigError{Field: "DISCORD_TOKEN", Message: "DISCORD_TOKEN is required"}
	}

	if config.DatabaseDSN == "" {
		return nil, &ConfigError{Field: "DATABASE_DSN", Message: "DATABASE_DSN is required"}
	}

	switch config.DatabaseDriver {
	case database.DriverPostgres, database.DriverSQLite:
	default:
		return nil, &ConfigError{Field: "DATABASE_DRIVER", Message: "DATABASE_DRIVER must be postgres or sqlite3"}
	}

	schedule := DefaultSchedule()
	if config.ConfigFile != "" {
		var err error
		if schedule, err = LoadFromFile(config.ConfigFile); err != nil {
			return nil, &ConfigError{Field: "CONFIG_FILE", Message: err.Error()}
		}
	}
	if err := schedule.Validate(); err != nil {
		return nil, &ConfigError{Field: "CONFIG_FILE", Message: err.Error()}
	}
	config.Schedule = schedule

	return config, nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
