package finAuth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/finAuth/gateway"
	"github.com/MrEthical07/finAuth/internal/flows"
	"github.com/MrEthical07/finAuth/jwt"
	"github.com/MrEthical07/finAuth/tokenstore"
)

// Client is the credential exchange service and owner of the gateway and
// token store. It is safe for concurrent use after [Builder.Build].
type Client struct {
	config     Config
	store      tokenstore.Store
	gateway    *gateway.Gateway
	httpClient *http.Client
	inspector  *jwt.Inspector
	logger     *slog.Logger
	metrics    *Metrics
	audit      *auditDispatcher
	flows      flows.Deps
	closed     atomic.Bool
	renewed    atomic.Pointer[Session]
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

// Login exchanges username and password for a token pair and loads the
// current user with the new access token. Only when both succeed is the pair
// stored and the session returned.
//
// A refused login returns a [*CredentialError]. A login that fails after the
// tokens were issued leaves the store untouched.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	res := flows.RunLogin(ctx, username, password, c.flows.Login)
	if !res.OK() {
		err := c.exchangeError("login", res.Outcome)
		c.metricInc(MetricLoginFailure)
		c.emitAudit(ctx, auditEventLoginFailure, false, username, 0, err, func() map[string]string {
			return map[string]string{"reason": res.Failure.String()}
		})
		c.logger.Info("finauth: login failed", "username", username, "reason", res.Failure.String())
		return nil, err
	}

	session := &Session{
		AccessToken:     res.AccessToken,
		RefreshToken:    res.RefreshToken,
		User:            userFromRecord(res.User),
		AccessExpiresAt: c.accessExpiry(res.AccessToken),
	}
	c.metricInc(MetricLoginSuccess)
	c.emitAudit(ctx, auditEventLoginSuccess, true, username, session.User.ID, nil, nil)
	c.logger.Info("finauth: logged in", "session", session)
	return session, nil
}

// Register creates an account. It never logs in and never touches the
// token store. Backend validation failures return a [*ValidationError].
func (c *Client) Register(ctx context.Context, username, email, password string) (*User, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	res := flows.RunRegister(ctx, username, email, password, c.flows.Register)
	if !res.OK() {
		err := c.exchangeError("register", res.Outcome)
		c.metricInc(MetricRegisterFailure)
		c.emitAudit(ctx, auditEventRegisterFailure, false, username, 0, err, func() map[string]string {
			return map[string]string{"reason": res.Failure.String()}
		})
		c.logger.Info("finauth: registration failed", "username", username, "reason", res.Failure.String())
		return nil, err
	}

	user := userFromRecord(res.User)
	c.metricInc(MetricRegisterSuccess)
	c.emitAudit(ctx, auditEventRegisterSuccess, true, user.Username, user.ID, nil, nil)
	c.logger.Info("finauth: registered", "username", user.Username, "user_id", user.ID)
	return &user, nil
}

// Refresh exchanges refreshToken for a new access token, loads the current
// user and stores the renewed pair. The stored refresh token changes only if
// the backend rotated it.
//
// An empty refreshToken fails with [ErrRefreshFailed] without a network
// call. Backend rejections return a [*RefreshError]; transport failures a
// [*NetworkError].
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	res := flows.RunRefresh(ctx, refreshToken, c.flows.Refresh)
	if !res.OK() {
		err := c.exchangeError("refresh", res.Outcome)
		c.metricInc(MetricRefreshFailure)
		c.emitAudit(ctx, auditEventRefreshFailure, false, "", 0, err, func() map[string]string {
			return map[string]string{"reason": res.Failure.String()}
		})
		c.logger.Info("finauth: refresh failed", "reason", res.Failure.String())
		return nil, err
	}

	out := &RefreshResult{
		AccessToken:     res.AccessToken,
		RefreshToken:    res.RefreshToken,
		Rotated:         res.Rotated,
		User:            userFromRecord(res.User),
		AccessExpiresAt: c.accessExpiry(res.AccessToken),
	}
	c.metricInc(MetricRefreshSuccess)
	c.emitAudit(ctx, auditEventRefreshSuccess, true, out.User.Username, out.User.ID, nil, func() map[string]string {
		if !out.Rotated {
			return nil
		}
		return map[string]string{"rotated": "true"}
	})
	c.logger.Debug("finauth: refreshed", "user_id", out.User.ID, "rotated", out.Rotated)
	return out, nil
}

// Logout clears the stored session. It makes no network call and succeeds
// when nothing is stored.
func (c *Client) Logout(ctx context.Context) error {
	if err := flows.RunLogout(ctx, c.flows.Logout); err != nil {
		return fmt.Errorf("%w: %w", ErrTokenStore, err)
	}
	c.metricInc(MetricLogout)
	c.emitAudit(ctx, auditEventLogout, true, "", 0, nil, nil)
	c.logger.Info("finauth: logged out")
	return nil
}

// Tokens returns the stored pair.
func (c *Client) Tokens(ctx context.Context) (tokenstore.Tokens, error) {
	tokens, err := c.store.Load(ctx)
	if err != nil {
		return tokenstore.Tokens{}, fmt.Errorf("%w: %w", ErrTokenStore, err)
	}
	return tokens, nil
}

// Gateway returns the request gateway every backend call must go through.
func (c *Client) Gateway() *gateway.Gateway {
	return c.gateway
}

// OnSessionExpired registers fn to run when a failed refresh ends the
// session. The returned function removes the registration.
func (c *Client) OnSessionExpired(fn func()) func() {
	return c.gateway.OnSessionExpired(fn)
}

// OnSessionRenewed registers fn to run with the renewed session after the
// gateway silently refreshed it. fn receives a copy and runs after the shared
// refresh has settled. The returned function removes the registration.
func (c *Client) OnSessionRenewed(fn func(*Session)) func() {
	if fn == nil {
		return func() {}
	}
	return c.gateway.OnRenewed(func(access string) {
		s := c.renewed.Load()
		if s == nil || s.AccessToken != access {
			return
		}
		renewed := *s
		fn(&renewed)
	})
}

// AccessExpired reports whether token is a JWT whose expiry has passed.
// Opaque tokens are never reported expired.
func (c *Client) AccessExpired(token string) bool {
	return c.inspector.Expired(token)
}

// MetricsSnapshot copies the current counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// AuditDropped reports audit events lost to a full buffer.
func (c *Client) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.Dropped()
}

// Close flushes the audit dispatcher. Exchange calls fail with
// [ErrClientClosed] afterwards; Logout and the gateway keep working, but a
// 401 can no longer be renewed and fails with [ErrRefreshUnavailable] with
// the stored session kept.
func (c *Client) Close() {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.audit.Close()
}

// refreshStored is the gateway's Refresher. Failures that say nothing about
// the session itself keep it stored.
func (c *Client) refreshStored(ctx context.Context) (string, error) {
	tokens, err := c.store.Load(ctx)
	if err != nil {
		if errors.Is(err, tokenstore.ErrUnavailable) {
			// keep the session; the store may come back
			return "", &NetworkError{Op: "load tokens", Err: err}
		}
		return "", fmt.Errorf("%w: %w: %w", ErrRefreshUnavailable, ErrTokenStore, err)
	}
	res, err := c.Refresh(ctx, tokens.RefreshToken)
	switch {
	case err == nil:
	case errors.Is(err, ErrClientClosed), errors.Is(err, ErrTokenStore):
		return "", fmt.Errorf("%w: %w", ErrRefreshUnavailable, err)
	default:
		return "", err
	}
	c.renewed.Store(res.Session())
	return res.AccessToken, nil
}

func (c *Client) gatewayHooks() gateway.Hooks {
	return gateway.Hooks{
		OnDispatch: func(_, _ string, _ int, elapsed time.Duration) {
			c.metricInc(MetricRequestDispatched)
			c.metrics.Observe(MetricRequestLatency, elapsed)
		},
		OnUnauthorized: func(string, string, bool) {
			c.metricInc(MetricUnauthorizedReceived)
		},
		OnRefresh: func(elapsed time.Duration, _ error) {
			c.metrics.Observe(MetricRefreshLatency, elapsed)
		},
		OnRefreshJoined: func() {
			c.metricInc(MetricRefreshCoalesced)
		},
		OnRetry: func(string, string) {
			c.metricInc(MetricRetry)
		},
		OnRetryRejected: func(string, string) {
			c.metricInc(MetricRetryRejected)
		},
		OnSessionExpired: func(cause error) {
			c.metricInc(MetricSessionExpired)
			c.emitAudit(context.Background(), auditEventSessionExpired, false, "", 0, ErrSessionExpired, func() map[string]string {
				return map[string]string{"cause": string(auditErrorCode(cause))}
			})
		},
		OnNetworkError: func(string, string, error) {
			c.metricInc(MetricNetworkError)
		},
	}
}

// exchangeError maps a flow outcome to the public error for op.
func (c *Client) exchangeError(op string, o flows.Outcome) error {
	switch o.Failure {
	case flows.FailureRejected:
		if op == "refresh" {
			return &RefreshError{Status: o.Status, Detail: o.Detail, Err: o.Err}
		}
		return &CredentialError{Status: o.Status, Detail: o.Detail}
	case flows.FailureInvalid:
		return &ValidationError{Fields: o.Fields, Message: o.Detail}
	case flows.FailureNoToken:
		return &RefreshError{Err: o.Err}
	case flows.FailureNetwork:
		return o.Err
	case flows.FailureMalformed:
		err := fmt.Errorf("%w: %w", ErrMalformedResponse, o.Err)
		if op == "refresh" {
			return &RefreshError{Err: err}
		}
		return err
	case flows.FailureUserFetch:
		err := fmt.Errorf("finauth: %s: fetch current user: %w", op, o.Err)
		if op == "refresh" {
			return &RefreshError{Status: o.Status, Detail: o.Detail, Err: err}
		}
		return err
	case flows.FailureStore:
		return fmt.Errorf("%w: %w", ErrTokenStore, o.Err)
	case flows.FailureBackend:
		if op == "refresh" {
			return &RefreshError{Status: o.Status, Detail: o.Detail, Err: o.Err}
		}
		return fmt.Errorf("finauth: %s: %w", op, o.Err)
	default:
		return fmt.Errorf("finauth: %s failed: %v", op, o.Failure)
	}
}

func (c *Client) accessExpiry(token string) time.Time {
	return c.inspector.ExpiresAt(token)
}

func userFromRecord(r flows.UserRecord) User {
	return User{
		ID:       r.ID,
		Username: r.Username,
		Email:    r.Email,
		IsStaff:  r.IsStaff,
	}
}
