package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/finAuth/jwt"
	"github.com/MrEthical07/finAuth/tokenstore"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	// HeaderRequestID is attached to every call. A retry reuses the value of
	// the attempt it replaces.
	HeaderRequestID = "X-Request-ID"

	// DefaultRefreshTimeout bounds a shared refresh once it is detached from
	// the caller that started it.
	DefaultRefreshTimeout = 15 * time.Second

	// DefaultProactiveLeeway is used when proactive renewal is on and no
	// leeway is configured.
	DefaultProactiveLeeway = 30 * time.Second

	maxErrorBody = 1 << 20
	refreshKey   = "refresh"
)

// Refresher obtains a new access token using the stored refresh token and
// persists the renewed pair before returning. Errors matching [ErrNetwork]
// or [ErrRefreshUnavailable] leave the session intact; every other error
// ends it.
type Refresher func(ctx context.Context) (string, error)

// Config wires a [Gateway]. Store is required; the rest is optional.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      tokenstore.Store
	Refresher  Refresher
	UserAgent  string

	RefreshTimeout  time.Duration
	Proactive       bool
	ProactiveLeeway time.Duration
	Inspector       *jwt.Inspector

	Logger *slog.Logger
	Hooks  Hooks
}

// Gateway dispatches backend calls with the stored credential and recovers
// from expired access tokens. It is safe for concurrent use.
type Gateway struct {
	base      *url.URL
	client    *http.Client
	store     tokenstore.Store
	refresher Refresher
	userAgent string

	refreshTimeout time.Duration
	proactive      bool
	leeway         time.Duration
	inspector      *jwt.Inspector

	logger *slog.Logger
	hooks  Hooks
	flight singleflight.Group

	expired listeners[struct{}]
	renewed listeners[string]
}

// New validates cfg and returns a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Store == nil {
		return nil, errors.New("gateway: token store is required")
	}
	g := &Gateway{
		client:         cfg.HTTPClient,
		store:          cfg.Store,
		refresher:      cfg.Refresher,
		userAgent:      cfg.UserAgent,
		refreshTimeout: cfg.RefreshTimeout,
		proactive:      cfg.Proactive,
		leeway:         cfg.ProactiveLeeway,
		inspector:      cfg.Inspector,
		logger:         cfg.Logger,
		hooks:          cfg.Hooks,
	}
	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("gateway: invalid base url: %w", err)
		}
		if base.Scheme == "" || base.Host == "" {
			return nil, fmt.Errorf("gateway: base url %q must be absolute", cfg.BaseURL)
		}
		g.base = base
	}
	if g.client == nil {
		g.client = &http.Client{Timeout: 30 * time.Second}
	}
	if g.refreshTimeout <= 0 {
		g.refreshTimeout = DefaultRefreshTimeout
	}
	if g.leeway <= 0 {
		g.leeway = DefaultProactiveLeeway
	}
	if g.inspector == nil {
		g.inspector = jwt.NewInspector(jwt.Config{})
	}
	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}
	return g, nil
}

// attempt is one dispatch of a call. Values are never mutated after
// construction; the retry is a copy with retried set.
type attempt struct {
	method  string
	url     *url.URL
	header  http.Header
	body    []byte
	retried bool
}

func (a attempt) asRetry() attempt {
	a.retried = true
	return a
}

func (a attempt) path() string {
	return a.url.Path
}

func (a attempt) request(ctx context.Context, bearer string) (*http.Request, error) {
	var body io.Reader
	if a.body != nil {
		body = bytes.NewReader(a.body)
	}
	req, err := http.NewRequestWithContext(ctx, a.method, a.url.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = a.header.Clone()
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else {
		req.Header.Del("Authorization")
	}
	return req, nil
}

// Do sends req and applies the retry contract described in the package
// documentation. Relative request URLs are resolved against the base URL.
// The returned response body must be closed by the caller.
func (g *Gateway) Do(ctx context.Context, req *http.Request, opts ...CallOption) (*http.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if ctx == nil {
		ctx = req.Context()
	}
	call := resolveOptions(ctx, opts)

	first, err := g.newAttempt(req)
	if err != nil {
		return nil, err
	}

	bearer, err := g.initialBearer(ctx, call)
	if err != nil {
		return nil, err
	}

	resp, err := g.send(ctx, first, bearer)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !call.refreshable() {
		return resp, nil
	}

	discard(resp)
	g.hooks.unauthorized(first.method, first.path(), false)
	g.logger.Debug("gateway: unauthorized, renewing",
		"method", first.method,
		"path", first.path(),
		"request_id", first.header.Get(HeaderRequestID),
	)

	token, err := g.renewAfter(ctx, bearer)
	if err != nil {
		return nil, err
	}

	retry := first.asRetry()
	g.hooks.retry(retry.method, retry.path())
	resp, err = g.send(ctx, retry, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		discard(resp)
		g.hooks.unauthorized(retry.method, retry.path(), true)
		g.hooks.retryRejected(retry.method, retry.path())
		return nil, fmt.Errorf("%w: %s %s rejected after refresh", ErrInvalidCredentials, retry.method, retry.path())
	}
	return resp, nil
}

func (g *Gateway) newAttempt(req *http.Request) (attempt, error) {
	if req.URL == nil {
		return attempt{}, errors.New("gateway: request has no url")
	}
	target := req.URL
	if !target.IsAbs() {
		if g.base == nil {
			return attempt{}, fmt.Errorf("gateway: relative url %q without base url", target)
		}
		target = g.base.ResolveReference(target)
	}

	a := attempt{
		method: req.Method,
		url:    target,
		header: req.Header.Clone(),
	}
	if a.method == "" {
		a.method = http.MethodGet
	}
	if a.header == nil {
		a.header = make(http.Header)
	}
	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return attempt{}, fmt.Errorf("gateway: read request body: %w", err)
		}
		a.body = body
	}
	if a.header.Get(HeaderRequestID) == "" {
		a.header.Set(HeaderRequestID, uuid.NewString())
	}
	if g.userAgent != "" && a.header.Get("User-Agent") == "" {
		a.header.Set("User-Agent", g.userAgent)
	}
	return a, nil
}

func (g *Gateway) initialBearer(ctx context.Context, call callOptions) (string, error) {
	switch call.auth {
	case authNone:
		return "", nil
	case authBearer:
		return call.bearer, nil
	}

	tokens, err := g.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("gateway: load tokens: %w", err)
	}
	if g.proactive && !call.noRefresh && tokens.HasAccess() && tokens.HasRefresh() && g.expiringSoon(tokens.AccessToken) {
		renewed, err := g.refresh(ctx, tokens.AccessToken)
		switch {
		case err == nil:
			return renewed, nil
		case keepsSession(err):
			g.logger.Debug("gateway: proactive refresh failed, using current token", "error", err)
		default:
			return "", err
		}
	}
	return tokens.AccessToken, nil
}

func (g *Gateway) expiringSoon(access string) bool {
	soon, err := g.inspector.ExpiresWithin(access, g.leeway)
	return err == nil && soon
}

func (g *Gateway) send(ctx context.Context, a attempt, bearer string) (*http.Response, error) {
	req, err := a.request(ctx, bearer)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	start := time.Now()
	resp, err := g.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		g.hooks.networkError(a.method, a.path(), err)
		g.logger.Debug("gateway: transport failure",
			"method", a.method,
			"path", a.path(),
			"retried", a.retried,
			"error", err,
		)
		return nil, &NetworkError{Op: a.method + " " + a.path(), Err: err}
	}
	g.hooks.dispatch(a.method, a.path(), resp.StatusCode, elapsed)
	g.logger.Debug("gateway: dispatched",
		"method", a.method,
		"path", a.path(),
		"status", resp.StatusCode,
		"retried", a.retried,
		"request_id", a.header.Get(HeaderRequestID),
		"elapsed", elapsed,
	)
	return resp, nil
}

// renewAfter returns the access token a 401'd call should retry with. If the
// store already moved past the token the call was sent with, that newer
// token is used without another refresh.
func (g *Gateway) renewAfter(ctx context.Context, sent string) (string, error) {
	if token, ok := g.movedPast(ctx, sent); ok {
		return token, nil
	}
	return g.refresh(ctx, sent)
}

func (g *Gateway) movedPast(ctx context.Context, sent string) (string, bool) {
	current, err := g.store.Load(ctx)
	if err != nil || !current.HasAccess() || current.AccessToken == sent {
		return "", false
	}
	return current.AccessToken, true
}

// flightResult is what a shared refresh hands every caller. Announcements
// run after the flight has settled so listeners may call back into the
// gateway.
type flightResult struct {
	token    string
	announce *announcement
}

type announcement struct {
	once sync.Once
	fn   func()
}

func (a *announcement) run() {
	if a != nil {
		a.once.Do(a.fn)
	}
}

// refresh runs the shared refresh, or joins the one already in flight. The
// refresh itself is detached from ctx; ctx only bounds this caller's wait.
// sent is the access token the caller holds; a flight that finds the store
// already past it reuses the stored token.
func (g *Gateway) refresh(ctx context.Context, sent string) (string, error) {
	if g.refresher == nil {
		a, err := g.expire(ctx, ErrNoRefresher)
		a.run()
		return "", err
	}

	leader := false
	ch := g.flight.DoChan(refreshKey, func() (any, error) {
		leader = true
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.refreshTimeout)
		defer cancel()

		if token, ok := g.movedPast(rctx, sent); ok {
			return flightResult{token: token}, nil
		}

		start := time.Now()
		token, err := g.refresher(rctx)
		g.hooks.refresh(time.Since(start), err)
		if err == nil && token == "" {
			err = errors.New("refresher returned empty access token")
		}
		if err != nil {
			a, err := g.expire(rctx, err)
			return flightResult{announce: a}, err
		}
		g.logger.Debug("gateway: access token renewed", "elapsed", time.Since(start))
		return flightResult{token: token, announce: g.renewedAnnouncement(token)}, nil
	})

	select {
	case res := <-ch:
		if !leader {
			g.hooks.refreshJoined()
		}
		return settle(res)
	case <-ctx.Done():
		// the flight still has to be announced when it lands
		go func() { _, _ = settle(<-ch) }()
		return "", ctx.Err()
	}
}

func settle(res singleflight.Result) (string, error) {
	out, _ := res.Val.(flightResult)
	out.announce.run()
	if res.Err != nil {
		return "", res.Err
	}
	return out.token, nil
}

// keepsSession reports whether a refresh failure leaves the stored session
// in place.
func keepsSession(err error) bool {
	return IsNetwork(err) || errors.Is(err, ErrRefreshUnavailable)
}

// expire maps a refresh failure to the error waiters observe. Failures that
// keep the session pass through untouched; anything else clears the store
// and returns the expiry announcement.
func (g *Gateway) expire(ctx context.Context, cause error) (*announcement, error) {
	if keepsSession(cause) {
		g.logger.Warn("gateway: refresh unavailable, session kept", "error", cause)
		return nil, cause
	}
	current, err := g.store.Load(ctx)
	held := err != nil || !current.Empty()
	if err := g.store.Clear(ctx); err != nil {
		g.logger.Error("gateway: clear token store after failed refresh", "error", err)
	}
	if !held {
		// nothing was stored, so no session ended
		g.logger.Debug("gateway: refresh without a stored session", "error", cause)
		return nil, ErrSessionExpired
	}
	g.logger.Warn("gateway: refresh rejected, session expired", "error", cause)
	return &announcement{fn: func() {
		g.hooks.sessionExpired(cause)
		g.expired.notify(struct{}{})
	}}, ErrSessionExpired
}

func (g *Gateway) renewedAnnouncement(token string) *announcement {
	return &announcement{fn: func() { g.renewed.notify(token) }}
}

// OnSessionExpired registers fn to run whenever a failed refresh ends the
// session. fn runs once per expiry, after the refresh has settled, on a
// goroutine that was waiting for it. The returned function removes the
// registration.
func (g *Gateway) OnSessionExpired(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	return g.expired.add(func(struct{}) { fn() })
}

// OnRenewed registers fn to run with the new access token after every
// successful shared refresh, with the same delivery rules as
// [Gateway.OnSessionExpired].
func (g *Gateway) OnRenewed(fn func(accessToken string)) func() {
	if fn == nil {
		return func() {}
	}
	return g.renewed.add(fn)
}

// NewRequest builds a request for path with body encoded as JSON. A nil body
// sends no payload.
func (g *Gateway) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, path, payload)
	if err != nil {
		return nil, fmt.Errorf("gateway: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// DoJSON sends in as JSON and decodes a 2xx response into out. Non-2xx
// responses are returned as [*StatusError].
func (g *Gateway) DoJSON(ctx context.Context, method, path string, in, out any, opts ...CallOption) error {
	req, err := g.NewRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	resp, err := g.Do(ctx, req, opts...)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: raw}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gateway: decode %s %s response: %w", method, strings.TrimSpace(path), err)
	}
	return nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
