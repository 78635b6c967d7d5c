package finAuth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/finAuth/gateway"
	"github.com/MrEthical07/finAuth/internal/flows"
	"github.com/MrEthical07/finAuth/jwt"
	"github.com/MrEthical07/finAuth/tokenstore"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Builder assembles a [Client]. A Builder can be built once.
type Builder struct {
	config     Config
	store      tokenstore.Store
	redis      redis.UniversalClient
	httpClient *http.Client
	logger     *slog.Logger
	auditSink  AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithTokenStore injects a store, overriding Config.TokenStore.
func (b *Builder) WithTokenStore(store tokenstore.Store) *Builder {
	b.store = store
	return b
}

// WithRedis supplies the client used by the redis token store backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithHTTPClient sets the client the gateway dispatches with. Its Transport
// must not be the gateway's own Transport.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithLogger sets the structured logger. The default discards.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go when Config.Audit is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles Config.Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles Config.Metrics.EnableLatencyHistograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- TOKEN STORE --------
	store := b.store
	if store == nil {
		switch cfg.TokenStore.Backend {
		case TokenStoreFile:
			store = tokenstore.NewFile(cfg.TokenStore.FilePath)
		case TokenStoreRedis:
			if b.redis == nil {
				return nil, errors.New("redis token store requires redis client")
			}
			store = tokenstore.NewRedis(b.redis, cfg.TokenStore.RedisPrefix)
		default:
			store = tokenstore.NewMemory()
		}
	}

	// -------- TRANSPORT --------
	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.API.Timeout}
	}
	if cfg.Tracing.Enabled {
		traced := *httpClient
		base := traced.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		traced.Transport = otelhttp.NewTransport(base)
		httpClient = &traced
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	inspector := jwt.NewInspector(jwt.Config{Leeway: cfg.Refresh.ClockSkew})

	c := &Client{
		config:     cfg,
		store:      store,
		httpClient: httpClient,
		inspector:  inspector,
		logger:     logger,
		metrics:    NewMetrics(cfg.Metrics),
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink),
	}

	// -------- GATEWAY --------
	gw, err := gateway.New(gateway.Config{
		BaseURL:         cfg.API.BaseURL,
		HTTPClient:      httpClient,
		Store:           store,
		Refresher:       c.refreshStored,
		UserAgent:       cfg.API.UserAgent,
		RefreshTimeout:  cfg.Refresh.Timeout,
		Proactive:       cfg.Refresh.Proactive,
		ProactiveLeeway: cfg.Refresh.Leeway,
		Inspector:       inspector,
		Logger:          logger,
		Hooks:           c.gatewayHooks(),
	})
	if err != nil {
		c.audit.Close()
		return nil, err
	}
	c.gateway = gw
	c.flows = c.flowDeps()

	b.built = true

	return c, nil
}

func (c *Client) flowDeps() flows.Deps {
	endpoints := flows.Endpoints{
		Token:        c.config.Endpoints.Token,
		TokenRefresh: c.config.Endpoints.TokenRefresh,
		Register:     c.config.Endpoints.Register,
		CurrentUser:  c.config.Endpoints.CurrentUser,
	}
	return flows.Deps{
		Login: flows.LoginDeps{
			API:        c.gateway,
			Endpoints:  endpoints,
			SaveTokens: c.store.Save,
		},
		Register: flows.RegisterDeps{
			API:       c.gateway,
			Endpoints: endpoints,
		},
		Refresh: flows.RefreshDeps{
			API:        c.gateway,
			Endpoints:  endpoints,
			SaveTokens: c.store.Save,
		},
		Logout: flows.LogoutDeps{
			ClearTokens: c.store.Clear,
		},
	}
}
