package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/emiliopalmerini/abcsmc/internal/util"
)

// Database holds the history database configuration.
type Database struct {
	URL       string `envconfig:"DATABASE_URL"`
	AuthToken string `envconfig:"AUTH_TOKEN"`
}

// Log holds the logger configuration.
type Log struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"console"`
}

// OTel holds the metrics exporter configuration.
type OTel struct {
	Enabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	Endpoint string `envconfig:"OTEL_ENDPOINT" default:"localhost:4317"`
	Insecure bool   `envconfig:"OTEL_INSECURE" default:"true"`
}

// Server holds configuration for the dashboard server.
type Server struct {
	Addr            string        `envconfig:"ADDR" default:"127.0.0.1:5000"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
}

// Config is the process configuration, read from ABCSMC_* variables.
type Config struct {
	Database Database
	Log      Log
	OTel     OTel
	Server   Server
}

const prefix = "ABCSMC"

// Load loads configuration from environment variables. Without
// ABCSMC_DATABASE_URL the history lives in the XDG data directory.
func Load() (*Config, error) {
	var cfg Config
	for _, section := range []any{&cfg.Database, &cfg.Log, &cfg.OTel, &cfg.Server} {
		if err := envconfig.Process(prefix, section); err != nil {
			return nil, err
		}
	}
	if cfg.Database.URL == "" {
		url, err := util.DefaultDatabaseURL()
		if err != nil {
			return nil, err
		}
		cfg.Database.URL = url
	}
	return &cfg, nil
}
