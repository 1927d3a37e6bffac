// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/briangreenhill/finboard/internal/auth"
)

// Config holds all application configuration
type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// ledger backend
	APIURL      string        `env:"API_URL" envDefault:"http://localhost:8000"`
	LiveURL     string        `env:"LIVE_URL" envDefault:"ws://localhost:8000"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	PageSize        int           `env:"PAGE_SIZE" envDefault:"10"`
	LiveRetryDelay  time.Duration `env:"LIVE_RETRY_DELAY" envDefault:"3s"`
	WorkspaceIdle   time.Duration `env:"WORKSPACE_IDLE" envDefault:"30m"`
	SessionLifetime time.Duration `env:"SESSION_LIFETIME" envDefault:"12h"`

	Admin AdminConfig

	// budgets go to Postgres when DATABASE_URL is set, SQLite otherwise
	BudgetDSN   string `env:"BUDGET_DSN" envDefault:"file:budgets.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	Currency string `env:"CURRENCY" envDefault:"USD"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// AdminConfig is the single credentials login. It is disabled when the
// username is empty.
type AdminConfig struct {
	Username string `env:"ADMIN_USERNAME"`
	Password string `env:"ADMIN_PASSWORD"`
	UserID   string `env:"ADMIN_USER_ID"`
}

// Load reads configuration from environment variables and validates it
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// HasCredentials returns true if the credentials login is configured
func (c *Config) HasCredentials() bool {
	return c.Admin.Username != ""
}

// Credentials returns the credentials login as the auth package wants it
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{Username: c.Admin.Username, Password: c.Admin.Password, UserID: c.Admin.UserID}
}

// Validate checks the values Load cannot express as defaults
func (c *Config) Validate() error {
	var errs []error
	if err := checkURL("API_URL", c.APIURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if c.LiveURL != "" {
		if err := checkURL("LIVE_URL", c.LiveURL, "ws", "wss"); err != nil {
			errs = append(errs, err)
		}
	}
	if c.PageSize < 1 {
		errs = append(errs, fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize))
	}
	if c.HasCredentials() {
		if len(c.Admin.Password) < auth.MinPasswordLen {
			errs = append(errs, fmt.Errorf("ADMIN_PASSWORD must be at least %d characters", auth.MinPasswordLen))
		}
		if c.Admin.UserID == "" {
			errs = append(errs, errors.New("ADMIN_USER_ID is required with ADMIN_USERNAME"))
		}
	}
	if c.DatabaseURL == "" && c.BudgetDSN == "" {
		errs = append(errs, errors.New("one of BUDGET_DSN or DATABASE_URL is required"))
	}
	return errors.Join(errs...)
}

func checkURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be a %v URL, got %q", name, schemes, raw)
}
