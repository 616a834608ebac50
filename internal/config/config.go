// config.go

// Environment variable loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all env configuration vars for the verification service.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL    string `env:"REDIS_URL,required,notEmpty"`
	Port        string `env:"PORT" envDefault:"5000"`

	// LogLevelName is the raw LOG_LEVEL value; LogLevel is derived from it.
	LogLevelName string     `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel     slog.Level `env:"-"`

	// DigiLocker client credentials. Never logged.
	ClientID     string `env:"CLIENT_ID,required,notEmpty"`
	ClientSecret string `env:"CLIENT_SECRET,required,notEmpty"`

	// DigiLockerBaseURL is the OAuth2 root; /authorize and /token hang off it.
	DigiLockerBaseURL string `env:"DIGILOCKER_BASE_URL" envDefault:"https://api.digitallocker.gov.in/public/oauth2/1"`
	// CallbackURL is this service's /callback as registered with DigiLocker.
	CallbackURL string `env:"CALLBACK_DIGILOCKER,required,notEmpty"`

	// Post-verification destinations, one per role.
	// TM_REDIRECT_URL is optional; a tm callback without it fails with a 500.
	AgentSelfRedirectURL   string `env:"AGENT_SELF_REDIRECT_URL,required,notEmpty"`
	AgentTMRedirectURL     string `env:"AGENT_TM_REDIRECT_URL,required,notEmpty"`
	DistributorRedirectURL string `env:"DS_FINVESTA_REDIRECT_URL,required,notEmpty"`
	TeamMemberRedirectURL  string `env:"TM_REDIRECT_URL"`

	// AttemptTTL bounds how long a state token stays redeemable.
	AttemptTTL time.Duration `env:"ATTEMPT_TTL" envDefault:"300s"`
	// ExchangeTimeout bounds the server-to-server token call.
	ExchangeTimeout time.Duration `env:"EXCHANGE_TIMEOUT" envDefault:"20s"`

	// TrustProxyHeaders honours X-Forwarded-For / X-Real-IP for the client IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// Rate limit policy for start-authorization per client IP.
	// Defaults: max=20, window=1m, lockout=5m.
	RateStartMax     int           `env:"RATE_START_MAX" envDefault:"20"`
	RateStartWindow  time.Duration `env:"RATE_START_WINDOW" envDefault:"1m"`
	RateStartLockout time.Duration `env:"RATE_START_LOCKOUT" envDefault:"5m"`
}

// LoadConfig reads .env (if present) and environment variables and returns a validated Config.
// Returns an error if required variables are missing or malformed.
func LoadConfig() (*Config, error) {
	// Missing .env is normal in containers; real env vars win over file values.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing env: %w", err)
	}

	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseLogLevel maps LOG_LEVEL to a slog level, default info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// validate checks URL shape and positive durations/limits.
func (c *Config) validate() error {
	urls := []struct {
		key, val string
	}{
		{"DIGILOCKER_BASE_URL", c.DigiLockerBaseURL},
		{"CALLBACK_DIGILOCKER", c.CallbackURL},
		{"AGENT_SELF_REDIRECT_URL", c.AgentSelfRedirectURL},
		{"AGENT_TM_REDIRECT_URL", c.AgentTMRedirectURL},
		{"DS_FINVESTA_REDIRECT_URL", c.DistributorRedirectURL},
	}
	if c.TeamMemberRedirectURL != "" {
		urls = append(urls, struct{ key, val string }{"TM_REDIRECT_URL", c.TeamMemberRedirectURL})
	}

	var errs []error
	for _, u := range urls {
		if err := absoluteURL(u.val); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.key, err))
		}
	}

	if c.AttemptTTL <= 0 {
		errs = append(errs, errors.New("ATTEMPT_TTL must be positive"))
	}
	if c.ExchangeTimeout <= 0 {
		errs = append(errs, errors.New("EXCHANGE_TIMEOUT must be positive"))
	}
	if c.RateStartMax <= 0 || c.RateStartWindow <= 0 || c.RateStartLockout <= 0 {
		errs = append(errs, errors.New("RATE_START_MAX, RATE_START_WINDOW and RATE_START_LOCKOUT must be positive"))
	}

	return errors.Join(errs...)
}

// absoluteURL rejects anything that isn't an absolute http(s) URL.
func absoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http(s) URL, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
