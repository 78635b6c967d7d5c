package guard

import (
	"context"
	"log/slog"
	"net/http"

	finAuth "github.com/MrEthical07/finAuth"
	"github.com/MrEthical07/finAuth/authstate"
)

// DefaultLoginPath is used when Options.LoginPath is empty.
const DefaultLoginPath = "/login"

type sessionContextKey struct{}

// SessionFromContext returns the session placed by [Middleware].
func SessionFromContext(ctx context.Context) (*finAuth.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*finAuth.Session)
	return s, ok
}

// StateSource supplies the current state. *authstate.Controller implements
// it.
type StateSource interface {
	State() authstate.AuthState
}

// Options configures [Middleware].
type Options struct {
	// LoginPath is the login surface. Default "/login".
	LoginPath string
	// Loading serves transient states. The default answers 503 with
	// Retry-After and a short placeholder body.
	Loading http.Handler
	// Logger records redirects at Debug. Nil discards.
	Logger *slog.Logger
}

// Middleware gates next on the state reported by src.
func Middleware(src StateSource, opts Options) func(http.Handler) http.Handler {
	loginPath := opts.LoginPath
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	loading := opts.Loading
	if loading == nil {
		loading = http.HandlerFunc(loadingPlaceholder)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if src == nil {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}

			state := src.State()
			dec := Decide(state, r.URL.RequestURI(), loginPath)
			switch dec.Action {
			case ActionLoading:
				loading.ServeHTTP(w, r)
			case ActionRedirect:
				logger.Debug("guard: redirect to login", "from", dec.From, "state", state.Kind.String())
				http.Redirect(w, r, dec.RedirectTo, http.StatusSeeOther)
			default:
				ctx := r.Context()
				if state.Session != nil {
					ctx = context.WithValue(ctx, sessionContextKey{}, state.Session)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

// Require is Middleware with only a login path.
func Require(src StateSource, loginPath string) func(http.Handler) http.Handler {
	return Middleware(src, Options{LoginPath: loginPath})
}

func loadingPlaceholder(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", "1")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("loading\n"))
}

// ReturnTo returns the "next" parameter of r when it is a local path, and
// fallback otherwise.
func ReturnTo(r *http.Request, fallback string) string {
	if r == nil || r.URL == nil {
		return fallback
	}
	next := r.URL.Query().Get(NextParam)
	if !localPath(next) {
		return fallback
	}
	return next
}
