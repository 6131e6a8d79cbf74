// Package config loads service configuration from the environment. A .env
// file is honored during development; real deployments set variables
// directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "WRDMS_"

// SMTP holds outbound mail credentials. Mail is an external collaborator:
// only dispatch settings live here.
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Config is the full runtime configuration for the API server.
type Config struct {
	Addr    string
	Env     string // "development" or "production"
	Version string

	PGDSN string

	AuthSecret  string
	TokenIssuer string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	ResetTTL    time.Duration

	FrontendBaseURL string
	CookieDomain    string

	RateBurst     int
	RatePerSecond int

	SMTP SMTP
}

// Production reports whether the service runs in production mode. It gates
// the Secure cookie attribute and the debug reset-token response.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads configuration from the environment, applying defaults suitable
// for local development.
func Load() (*Config, error) {
	// Missing .env is fine; environment variables win anyway.
	_ = godotenv.Load()

	cfg := &Config{
		Addr:            getenv("ADDR", ":8080"),
		Env:             getenv("ENV", "development"),
		PGDSN:           getenv("PG_DSN", ""),
		AuthSecret:      getenv("AUTH_SECRET", ""),
		TokenIssuer:     getenv("TOKEN_ISSUER", "wrdms"),
		FrontendBaseURL: getenv("FRONTEND_BASE_URL", "http://localhost:3000"),
		CookieDomain:    getenv("COOKIE_DOMAIN", ""),
		SMTP: SMTP{
			Host:     getenv("SMTP_HOST", ""),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "no-reply@wrdms.org"),
		},
	}

	var err error
	if cfg.AccessTTL, err = getduration("ACCESS_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshTTL, err = getduration("REFRESH_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ResetTTL, err = getduration("RESET_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = getint("RATE_BURST", 20); err != nil {
		return nil, err
	}
	if cfg.RatePerSecond, err = getint("RATE_PER_SECOND", 10); err != nil {
		return nil, err
	}
	if cfg.SMTP.Port, err = getint("SMTP_PORT", 587); err != nil {
		return nil, err
	}

	if cfg.Production() {
		if cfg.AuthSecret == "" {
			return nil, fmt.Errorf("config: %sAUTH_SECRET is required in production", envPrefix)
		}
		if cfg.PGDSN == "" {
			return nil, fmt.Errorf("config: %sPG_DSN is required in production", envPrefix)
		}
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return def
}

func getduration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s%s: %w", envPrefix, key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s%s must be positive", envPrefix, key)
	}
	return d, nil
}

func getint(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s%s: %w", envPrefix, key, err)
	}
	return n, nil
}
