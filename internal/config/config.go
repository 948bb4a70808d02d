// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the portfolio server. It is parsed once at
// startup and passed to constructors.
type Config struct {
	Port     string `env:"PORT" envDefault:"3000"`
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AdminCode      string        `env:"ADMIN_CODE,required"`
	SessionSecret  string        `env:"SESSION_SECRET"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	LoginPerMinute int           `env:"LOGIN_ATTEMPTS_PER_MINUTE" envDefault:"5"`

	GitHubUsername  string        `env:"GITHUB_USERNAME"`
	GitHubToken     string        `env:"GITHUB_TOKEN"`
	GitHubAPIURL    string        `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`

	CacheDir        string        `env:"CACHE_DIR" envDefault:"data/cache"`
	CacheTTL        time.Duration `env:"CACHE_TTL" envDefault:"24h"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"24h"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"data/portfolio.db"`
	UploadDir    string `env:"UPLOAD_DIR" envDefault:"public/uploads"`

	ScheduleToken string `env:"SCHEDULE_TOKEN"`

	SiteTitle string `env:"SITE_TITLE" envDefault:"projects"`
	SiteURL   string `env:"SITE_URL" envDefault:"http://localhost:3000"`

	TLSCertFile string `env:"TLS_CERT_FILE"`
	TLSKeyFile  string `env:"TLS_KEY_FILE"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.AdminCode) == "" {
		return fmt.Errorf("ADMIN_CODE must not be blank")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("REFRESH_INTERVAL must not be negative, got %s", c.RefreshInterval)
	}
	if c.LoginPerMinute <= 0 {
		return fmt.Errorf("LOGIN_ATTEMPTS_PER_MINUTE must be positive, got %d", c.LoginPerMinute)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	return nil
}

// Production reports whether the process runs in a production-like
// environment.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// TLS reports whether a certificate pair was configured.
func (c Config) TLS() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Level maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
