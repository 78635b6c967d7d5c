package authstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	finAuth "github.com/MrEthical07/finAuth"
	"github.com/MrEthical07/finAuth/jwt"
	"github.com/MrEthical07/finAuth/tokenstore"
)

var (
	// ErrBusy is returned when an operation arrives during a transient state.
	ErrBusy = errors.New("authstate: operation in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("authstate: controller closed")
)

// Exchange is the credential exchange the controller drives.
// *finAuth.Client implements it.
type Exchange interface {
	Login(ctx context.Context, username, password string) (*finAuth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*finAuth.RefreshResult, error)
	Logout(ctx context.Context) error
	Tokens(ctx context.Context) (tokenstore.Tokens, error)
	OnSessionExpired(fn func()) func()
	OnSessionRenewed(fn func(*finAuth.Session)) func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the transition logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithInspector sets the inspector used to reject a locally expired refresh
// token during bootstrap.
func WithInspector(inspector *jwt.Inspector) Option {
	return func(c *Controller) {
		if inspector != nil {
			c.inspector = inspector
		}
	}
}

type subscriber struct {
	id uint64
	fn func(AuthState)
}

type notification struct {
	state AuthState
	subs  []subscriber
}

// Controller is the state machine. It is safe for concurrent use.
type Controller struct {
	ex        Exchange
	inspector *jwt.Inspector
	logger    *slog.Logger

	mu        sync.Mutex
	state     AuthState
	inflight  bool
	started   bool
	closed    bool
	subs      []subscriber
	nextSub   uint64
	pending   []notification
	notifying bool

	// gateway signals that arrived while an operation was in flight; the
	// latest one wins
	expiredDuring bool
	renewedDuring *finAuth.Session

	stopExpired func()
	stopRenewed func()
}

// New returns a Controller in Bootstrapping. Call Bootstrap to resolve it.
func New(ex Exchange, opts ...Option) *Controller {
	c := &Controller{
		ex:        ex,
		inspector: jwt.NewInspector(jwt.Config{}),
		logger:    slog.New(slog.DiscardHandler),
		state:     AuthState{Kind: Bootstrapping},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stopExpired = ex.OnSessionExpired(c.sessionExpired)
	c.stopRenewed = ex.OnSessionRenewed(c.sessionRenewed)
	return c
}

// State returns a copy of the current state.
func (c *Controller) State() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe registers fn for every state change. The returned function
// removes it.
func (c *Controller) Subscribe(fn func(AuthState)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || fn == nil {
		return func() {}
	}
	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, s := range c.subs {
				if s.id == id {
					c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Bootstrap resolves the stored session. It runs from the initial
// Bootstrapping state or from Error; in any other state it returns the
// current state without doing anything.
//
// No stored refresh token, or a JWT refresh token that has already expired,
// yields Unauthenticated. Otherwise the refresh token is exchanged: success
// yields Authenticated, a rejection clears the store and yields
// Unauthenticated. A network or store failure yields Error with the store
// untouched.
func (c *Controller) Bootstrap(ctx context.Context) AuthState {
	c.mu.Lock()
	runnable := !c.closed && !c.inflight &&
		((c.state.Kind == Bootstrapping && !c.started) || c.state.Kind == Error)
	if !runnable {
		s := c.state.clone()
		c.mu.Unlock()
		return s
	}
	c.inflight = true
	c.started = true
	c.expiredDuring, c.renewedDuring = false, nil
	retry := c.state.Kind == Error
	c.mu.Unlock()

	if retry {
		c.set("bootstrap", false, AuthState{Kind: Bootstrapping})
	}
	next := c.resolve(ctx)
	c.set("bootstrap", true, next)
	return next.clone()
}

func (c *Controller) resolve(ctx context.Context) AuthState {
	tokens, err := c.ex.Tokens(ctx)
	if err != nil {
		c.logger.Warn("authstate: token store unavailable", "error", err)
		return AuthState{Kind: Error, Reason: ReasonUnavailable, Err: err}
	}
	if !tokens.HasRefresh() {
		if !tokens.Empty() {
			c.clear(ctx)
		}
		return AuthState{Kind: Unauthenticated}
	}
	if c.inspector.Expired(tokens.RefreshToken) {
		c.clear(ctx)
		return AuthState{Kind: Unauthenticated, Reason: ReasonSessionExpired}
	}

	res, err := c.ex.Refresh(ctx, tokens.RefreshToken)
	switch {
	case err == nil:
		return AuthState{Kind: Authenticated, Session: res.Session()}
	case errors.Is(err, finAuth.ErrNetwork):
		return AuthState{Kind: Error, Reason: ReasonNetwork, Err: err}
	case errors.Is(err, finAuth.ErrTokenStore), errors.Is(err, finAuth.ErrClientClosed):
		return AuthState{Kind: Error, Reason: ReasonUnavailable, Err: err}
	default:
		c.logger.Info("authstate: stored session rejected", "error", err)
		c.clear(ctx)
		return AuthState{Kind: Unauthenticated, Reason: ReasonSessionExpired}
	}
}

func (c *Controller) clear(ctx context.Context) {
	if err := c.ex.Logout(ctx); err != nil {
		c.logger.Warn("authstate: clear stored session", "error", err)
	}
}

// Login authenticates from Unauthenticated, Error or Authenticated; a
// successful login replaces any previous session. On failure the previous
// state is restored and the error is returned unchanged. A previous session
// that the gateway ended or renewed meanwhile is restored as it now stands.
func (c *Controller) Login(ctx context.Context, username, password string) (*finAuth.Session, error) {
	prev, err := c.acquire()
	if err != nil {
		return nil, err
	}
	c.set("login", false, AuthState{Kind: Authenticating})

	session, err := c.ex.Login(ctx, username, password)
	if err != nil {
		c.update("login_failed", true, func(AuthState) (AuthState, bool) {
			return c.restore(prev), true
		})
		return nil, err
	}
	stored := *session
	c.set("login", true, AuthState{Kind: Authenticated, Session: &stored})
	return session, nil
}

// Logout clears the stored session and moves to Unauthenticated. It is
// accepted from every settled state. A store failure is returned after the
// transition.
func (c *Controller) Logout(ctx context.Context) error {
	if _, err := c.acquire(); err != nil {
		return err
	}
	err := c.ex.Logout(ctx)
	c.set("logout", true, AuthState{Kind: Unauthenticated, Reason: ReasonLoggedOut})
	return err
}

// restore returns prev adjusted for gateway signals received while in
// flight. Called with c.mu held.
func (c *Controller) restore(prev AuthState) AuthState {
	next := prev
	if prev.Kind == Authenticated {
		switch {
		case c.expiredDuring:
			next = AuthState{Kind: Unauthenticated, Reason: ReasonSessionExpired}
		case c.renewedDuring != nil:
			next = AuthState{Kind: Authenticated, Session: c.renewedDuring}
		}
	}
	c.expiredDuring, c.renewedDuring = false, nil
	return next
}

// Close detaches from the gateway and drops all subscribers.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.subs = nil
	stops := []func(){c.stopExpired, c.stopRenewed}
	c.mu.Unlock()

	for _, stop := range stops {
		if stop != nil {
			stop()
		}
	}
}

// acquire claims the controller for one operation from a settled state.
func (c *Controller) acquire() (AuthState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return AuthState{}, ErrClosed
	}
	if c.inflight || c.state.Kind.Transient() {
		return AuthState{}, ErrBusy
	}
	c.inflight = true
	c.expiredDuring, c.renewedDuring = false, nil
	return c.state, nil
}

func (c *Controller) sessionExpired() {
	c.update("session_expired", false, func(cur AuthState) (AuthState, bool) {
		if c.inflight {
			c.expiredDuring, c.renewedDuring = true, nil
			return cur, false
		}
		if cur.Kind != Authenticated {
			return cur, false
		}
		return AuthState{Kind: Unauthenticated, Reason: ReasonSessionExpired}, true
	})
}

// sessionRenewed swaps in the session of a silent gateway refresh.
func (c *Controller) sessionRenewed(s *finAuth.Session) {
	if s == nil {
		return
	}
	c.update("session_renewed", false, func(cur AuthState) (AuthState, bool) {
		if c.inflight {
			c.expiredDuring, c.renewedDuring = false, s
			return cur, false
		}
		if cur.Kind != Authenticated {
			return cur, false
		}
		return AuthState{Kind: Authenticated, Session: s}, true
	})
}

func (c *Controller) set(event string, release bool, next AuthState) {
	c.update(event, release, func(AuthState) (AuthState, bool) {
		return next, true
	})
}

// update applies fn under the lock and delivers the resulting notification.
// Notifications queue up while another goroutine is delivering, so
// subscribers see transitions in the order they were made.
func (c *Controller) update(event string, release bool, fn func(AuthState) (AuthState, bool)) {
	c.mu.Lock()
	if release {
		c.inflight = false
	}
	prev := c.state
	next, ok := fn(prev)
	if !ok || prev.same(next) {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.logger.Info("authstate: transition", "event", event, "from", prev.Kind.String(), "to", next)

	c.pending = append(c.pending, notification{
		state: next,
		subs:  append([]subscriber(nil), c.subs...),
	})
	if c.notifying {
		c.mu.Unlock()
		return
	}
	c.notifying = true
	for len(c.pending) > 0 {
		n := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		for _, s := range n.subs {
			s.fn(n.state.clone())
		}
		c.mu.Lock()
	}
	c.notifying = false
	c.mu.Unlock()
}
