package guard

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	finAuth "github.com/MrEthical07/finAuth"
	"github.com/MrEthical07/finAuth/authstate"
)

type staticState authstate.AuthState

func (s staticState) State() authstate.AuthState {
	return authstate.AuthState(s)
}

func authenticated() authstate.AuthState {
	return authstate.AuthState{
		Kind:    authstate.Authenticated,
		Session: &finAuth.Session{User: finAuth.User{ID: 1, Username: "alice"}},
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		state      authstate.AuthState
		path       string
		wantAction Action
		wantTo     string
	}{
		{"bootstrapping loads", authstate.AuthState{Kind: authstate.Bootstrapping}, "/dashboard", ActionLoading, ""},
		{"authenticating loads", authstate.AuthState{Kind: authstate.Authenticating}, "/dashboard", ActionLoading, ""},
		{"authenticated renders", authenticated(), "/dashboard", ActionRender, ""},
		{
			"unauthenticated redirects with next",
			authstate.AuthState{Kind: authstate.Unauthenticated},
			"/reports?month=2024-01",
			ActionRedirect,
			"/login?next=%2Freports%3Fmonth%3D2024-01",
		},
		{
			"error redirects",
			authstate.AuthState{Kind: authstate.Error, Reason: authstate.ReasonNetwork},
			"/dashboard",
			ActionRedirect,
			"/login?next=%2Fdashboard",
		},
		{"login page renders", authstate.AuthState{Kind: authstate.Unauthenticated}, "/login?x=1", ActionRender, ""},
		{
			"authenticated without session redirects",
			authstate.AuthState{Kind: authstate.Authenticated},
			"/dashboard",
			ActionRedirect,
			"/login?next=%2Fdashboard",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.state, tt.path, "/login")
			if d.Action != tt.wantAction {
				t.Fatalf("expected %v, got %v", tt.wantAction, d.Action)
			}
			if d.RedirectTo != tt.wantTo {
				t.Fatalf("expected redirect %q, got %q", tt.wantTo, d.RedirectTo)
			}
			if d.Action == ActionRedirect && d.From != tt.path {
				t.Fatalf("expected From %q, got %q", tt.path, d.From)
			}
		})
	}
}

func TestDecideLoginPathWithQuery(t *testing.T) {
	d := Decide(authstate.AuthState{Kind: authstate.Unauthenticated}, "/a", "/login?lang=en")
	if d.RedirectTo != "/login?lang=en&next=%2Fa" {
		t.Fatalf("unexpected redirect %q", d.RedirectTo)
	}
}

func TestMiddlewareRendersWithSession(t *testing.T) {
	var got *finAuth.Session
	h := Require(staticState(authenticated()), "/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected protected handler, got %d", rec.Code)
	}
	if got == nil || got.User.Username != "alice" {
		t.Fatalf("expected session in context, got %+v", got)
	}
}

func TestMiddlewareLoadingNeverRedirects(t *testing.T) {
	called := false
	h := Middleware(staticState{Kind: authstate.Bootstrapping}, Options{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if called {
		t.Fatal("protected handler must not run while bootstrapping")
	}
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Location") != "" {
		t.Fatalf("expected placeholder without redirect, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After on placeholder")
	}
}

func TestMiddlewareCustomLoading(t *testing.T) {
	h := Middleware(staticState{Kind: authstate.Authenticating}, Options{
		Loading: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) }),
	})(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected custom loading handler, got %d", rec.Code)
	}
}

func TestMiddlewareRedirectRoundTrip(t *testing.T) {
	h := Middleware(staticState{Kind: authstate.Unauthenticated}, Options{LoginPath: "/signin"})(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports?month=3", nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad Location: %v", err)
	}
	if loc.Path != "/signin" {
		t.Fatalf("expected login path, got %s", loc.Path)
	}

	back := httptest.NewRequest(http.MethodGet, loc.String(), nil)
	if got := ReturnTo(back, "/"); got != "/reports?month=3" {
		t.Fatalf("expected original path back, got %q", got)
	}
}

func TestReturnToRejectsForeignTargets(t *testing.T) {
	for _, next := range []string{
		"",
		"https://evil.example/x",
		"//evil.example/x",
		"/\\evil.example",
		"dashboard",
		"javascript:alert(1)",
	} {
		r := httptest.NewRequest(http.MethodGet, "/login?next="+url.QueryEscape(next), nil)
		if got := ReturnTo(r, "/home"); got != "/home" {
			t.Fatalf("next=%q: expected fallback, got %q", next, got)
		}
	}
}

func TestMiddlewareFollowsControllerState(t *testing.T) {
	src := &mutableState{state: authstate.AuthState{Kind: authstate.Bootstrapping}}
	h := Require(src, "/login")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := []int{}
	for _, s := range []authstate.AuthState{
		{Kind: authstate.Bootstrapping},
		authenticated(),
		{Kind: authstate.Unauthenticated, Reason: authstate.ReasonSessionExpired},
	} {
		src.state = s
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
		codes = append(codes, rec.Code)
	}

	want := []int{http.StatusServiceUnavailable, http.StatusOK, http.StatusSeeOther}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("step %d: expected %d, got %d", i, want[i], codes[i])
		}
	}
}

type mutableState struct {
	state authstate.AuthState
}

func (m *mutableState) State() authstate.AuthState {
	return m.state
}
