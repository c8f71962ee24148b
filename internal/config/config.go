// Package config loads client settings from the environment (and an
// optional .env file in the working directory).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
	"go.uber.org/zap/zapcore"
)

// Session storage backends.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

type Config struct {
	APIURL            string        `env:"MEDREC_API_URL" default:"http://localhost:8000"`
	StateDir          string        `env:"MEDREC_STATE_DIR"`
	SessionBackend    string        `env:"MEDREC_SESSION_BACKEND" default:"file"`
	SessionPassphrase string        `env:"MEDREC_SESSION_PASSPHRASE"`
	LogLevel          string        `env:"MEDREC_LOG_LEVEL" default:"warn"`
	LogFormat         string        `env:"MEDREC_LOG_FORMAT" default:"console"`
	Timeout           time.Duration `env:"MEDREC_TIMEOUT" default:"30s"`
	TokenTTL          time.Duration `env:"MEDREC_TOKEN_TTL" default:"15m"`
}

// Load reads .env (if present) and the environment, fills defaults and validates.
func Load() (*Config, error) {
	// a missing .env is normal
	_ = godotenv.Load()

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultStateDir is $XDG_CONFIG_HOME/medrec, falling back to ~/.config/medrec.
func DefaultStateDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "medrec")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "medrec")
}

// Validate rejects settings the client cannot start with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("MEDREC_API_URL must be an http(s) URL, got %q", c.APIURL)
	}
	switch c.SessionBackend {
	case BackendFile, BackendBadger:
	default:
		return fmt.Errorf("MEDREC_SESSION_BACKEND must be %q or %q, got %q", BackendFile, BackendBadger, c.SessionBackend)
	}
	if c.StateDir == "" {
		return errors.New("MEDREC_STATE_DIR is required")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("MEDREC_LOG_LEVEL: %w", err)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("MEDREC_LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	if c.Timeout <= 0 {
		return errors.New("MEDREC_TIMEOUT must be positive")
	}
	if c.TokenTTL <= 0 {
		return errors.New("MEDREC_TOKEN_TTL must be positive")
	}
	return nil
}
