package finAuth

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config is the complete client configuration. Obtain one from
// [DefaultConfig] and override fields; the Builder validates it.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	API        APIConfig
	Endpoints  EndpointsConfig
	TokenStore TokenStoreConfig
	Refresh    RefreshConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
	Tracing    TracingConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig locates the backend.
type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// EndpointsConfig holds backend paths relative to APIConfig.BaseURL.
type EndpointsConfig struct {
	Token        string
	TokenRefresh string
	Register     string
	CurrentUser  string
}

/*
====================================
TOKEN STORE CONFIG
====================================
*/

// TokenStoreBackend selects where the token pair is kept.
type TokenStoreBackend string

const (
	// TokenStoreMemory keeps tokens in process memory.
	TokenStoreMemory TokenStoreBackend = "memory"
	// TokenStoreFile keeps tokens in a 0600 JSON file.
	TokenStoreFile TokenStoreBackend = "file"
	// TokenStoreRedis keeps tokens in Redis; requires Builder.WithRedis.
	TokenStoreRedis TokenStoreBackend = "redis"
)

// TokenStoreConfig configures the store built when none is injected with
// Builder.WithTokenStore.
type TokenStoreConfig struct {
	Backend     TokenStoreBackend
	FilePath    string
	RedisPrefix string
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig tunes token renewal. Proactive renews a JWT access token
// that expires within Leeway before dispatching a call. Timeout bounds a
// shared refresh.
type RefreshConfig struct {
	Proactive bool
	Leeway    time.Duration
	Timeout   time.Duration
	ClockSkew time.Duration
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// TracingConfig wraps the outbound transport with OpenTelemetry client
// spans when Enabled.
type TracingConfig struct {
	Enabled bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:   "http://localhost:8000",
			Timeout:   30 * time.Second,
			UserAgent: "finauth-go",
		},
		Endpoints: EndpointsConfig{
			Token:        "/api/token/",
			TokenRefresh: "/api/token/refresh/",
			Register:     "/api/v1/register/",
			CurrentUser:  "/api/v1/users/me/",
		},
		TokenStore: TokenStoreConfig{
			Backend:     TokenStoreMemory,
			RedisPrefix: "finauth",
		},
		Refresh: RefreshConfig{
			Proactive: false,
			Leeway:    30 * time.Second,
			Timeout:   15 * time.Second,
			ClockSkew: 0,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Tracing: TracingConfig{
			Enabled: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// API
	if c.API.BaseURL == "" {
		return errors.New("API BaseURL is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" {
		return errors.New("API BaseURL must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("API BaseURL scheme must be http or https")
	}
	if c.API.Timeout < 0 {
		return errors.New("API Timeout must be >= 0")
	}

	// Endpoints
	for name, path := range map[string]string{
		"Token":        c.Endpoints.Token,
		"TokenRefresh": c.Endpoints.TokenRefresh,
		"Register":     c.Endpoints.Register,
		"CurrentUser":  c.Endpoints.CurrentUser,
	} {
		if !strings.HasPrefix(path, "/") {
			return errors.New("Endpoints " + name + " must be an absolute path")
		}
	}

	// Token store
	switch c.TokenStore.Backend {
	case TokenStoreMemory, TokenStoreRedis:
		// valid
	case TokenStoreFile:
		if c.TokenStore.FilePath == "" {
			return errors.New("TokenStore FilePath is required for the file backend")
		}
	default:
		return errors.New("TokenStore Backend must be memory, file, or redis")
	}

	// Refresh
	if c.Refresh.Timeout <= 0 {
		return errors.New("Refresh Timeout must be > 0")
	}
	if c.Refresh.Proactive && c.Refresh.Leeway <= 0 {
		return errors.New("Refresh Leeway must be > 0 when Proactive is true")
	}
	if c.Refresh.Leeway < 0 {
		return errors.New("Refresh Leeway must be >= 0")
	}
	if c.Refresh.ClockSkew < 0 {
		return errors.New("Refresh ClockSkew must be >= 0")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	return nil
}
