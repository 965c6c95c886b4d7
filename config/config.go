package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
)

// Credential store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreCookie = "cookie"
)

// ClientConfig holds all configuration for the wallet client.
type ClientConfig struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Backend
	APIURL          string        `env:"MERCURIA_API_URL" envDefault:"http://localhost:9000/api/v1"`
	AnalyticsURL    string        `env:"MERCURIA_ANALYTICS_URL" envDefault:"http://localhost:9000/api/v1"`
	RequestTimeout  time.Duration `env:"MERCURIA_REQUEST_TIMEOUT" envDefault:"30s"`
	ReadRetries     int           `env:"MERCURIA_READ_RETRIES" envDefault:"2"`
	BreakerEnabled  bool          `env:"MERCURIA_BREAKER_ENABLED" envDefault:"true"`
	BreakerTimeout  time.Duration `env:"MERCURIA_BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerMinCalls uint32        `env:"MERCURIA_BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Refresh credential persistence
	CredentialStore   string `env:"MERCURIA_CREDENTIAL_STORE" envDefault:"memory"`
	RedisURL          string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RefreshCookieName string `env:"MERCURIA_REFRESH_COOKIE" envDefault:"mercuria_rt"`
	RefreshTTLDays    int    `env:"MERCURIA_REFRESH_TTL_DAYS" envDefault:"7"`
	CookieOrigin      string `env:"MERCURIA_COOKIE_ORIGIN" envDefault:"https://localhost"`
	CookieHTTPOnly    bool   `env:"MERCURIA_COOKIE_HTTP_ONLY" envDefault:"true"`

	// Session events
	EventStream bool `env:"MERCURIA_EVENT_STREAM" envDefault:"false"`
}

// SandboxConfig holds all configuration for the local sandbox backend.
type SandboxConfig struct {
	LogLevel   string        `env:"LOG_LEVEL" envDefault:"info"`
	Addr       string        `env:"SANDBOX_ADDR" envDefault:":9000"`
	JWTSecret  string        `env:"SANDBOX_JWT_SECRET" envDefault:"sandbox-secret-change-me"`
	AccessTTL  time.Duration `env:"SANDBOX_ACCESS_TTL" envDefault:"5m"`
	RefreshTTL time.Duration `env:"SANDBOX_REFRESH_TTL" envDefault:"168h"`
	RedisURL   string        `env:"REDIS_URL"`
}

// Load parses environment variables into the provided struct.
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadClient reads and validates the client configuration.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := Load(cfg); err != nil {
		return nil, fmt.Errorf("load client config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSandbox reads the sandbox configuration.
func LoadSandbox() (*SandboxConfig, error) {
	cfg := &SandboxConfig{}
	if err := Load(cfg); err != nil {
		return nil, fmt.Errorf("load sandbox config: %w", err)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("token lifetimes must be positive")
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *ClientConfig) Validate() error {
	for name, raw := range map[string]string{"api": c.APIURL, "analytics": c.AnalyticsURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s url: %q", name, raw)
		}
	}
	switch c.CredentialStore {
	case StoreMemory, StoreRedis, StoreCookie:
	default:
		return fmt.Errorf("unknown credential store: %q", c.CredentialStore)
	}
	if c.RefreshTTLDays < 1 {
		return fmt.Errorf("invalid refresh ttl: %d days", c.RefreshTTLDays)
	}
	if c.RefreshCookieName == "" {
		return fmt.Errorf("refresh cookie name is required")
	}
	return nil
}

// RefreshTTL is the validity window written with the refresh credential.
func (c *ClientConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}
