package finAuth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/finAuth/internal/fakeapi"
	"github.com/MrEthical07/finAuth/tokenstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	testUser     = "alice"
	testEmail    = "alice@example.com"
	testPassword = "correct-password-123"
)

type clientFixture struct {
	client  *Client
	backend *fakeapi.Backend
	server  *httptest.Server
	store   *tokenstore.Memory
}

func newClientFixture(t *testing.T, opts fakeapi.Options, configure ...func(*Builder)) *clientFixture {
	t.Helper()

	backend := fakeapi.New(opts)
	backend.AddUser(testUser, testEmail, testPassword, false)
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.API.BaseURL = server.URL
	cfg.Metrics.Enabled = true

	store := tokenstore.NewMemory()
	b := New().WithConfig(cfg).WithTokenStore(store)
	for _, fn := range configure {
		fn(b)
	}
	client, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(client.Close)

	return &clientFixture{client: client, backend: backend, server: server, store: store}
}

func (f *clientFixture) storedTokens(t *testing.T) tokenstore.Tokens {
	t.Helper()
	tokens, err := f.client.Tokens(context.Background())
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	return tokens
}

func TestLoginStoresSessionAfterUserFetch(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{})

	session, err := f.client.Login(context.Background(), testUser, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.User.Username != testUser || session.User.Email != testEmail {
		t.Fatalf("unexpected user %+v", session.User)
	}
	if session.AccessExpiresAt.IsZero() {
		t.Fatalf("expected access expiry from the JWT")
	}

	tokens := f.storedTokens(t)
	if tokens.AccessToken != session.AccessToken || tokens.RefreshToken != session.RefreshToken {
		t.Fatalf("store does not hold the issued pair")
	}
	if f.backend.Calls(fakeapi.PathCurrentUser) != 1 {
		t.Fatalf("expected one current-user fetch")
	}
	if got := f.client.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("expected MetricLoginSuccess=1, got %d", got)
	}
}

func TestLoginInvalidCredentialsLeavesStoreEmpty(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{})

	_, err := f.client.Login(context.Background(), testUser, "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	var ce *CredentialError
	if !errors.As(err, &ce) || ce.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 CredentialError, got %#v", err)
	}
	if !strings.Contains(ce.Detail, "No active account") {
		t.Fatalf("expected backend detail, got %q", ce.Detail)
	}
	if !f.storedTokens(t).Empty() {
		t.Fatalf("store must stay empty")
	}
	if f.backend.Calls(fakeapi.PathCurrentUser) != 0 {
		t.Fatalf("rejected login must not fetch the user")
	}
}

func TestLoginMissingFieldsIsCredentialError(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{})

	_, err := f.client.Login(context.Background(), "", "")
	var ce *CredentialError
	if !errors.As(err, &ce) || ce.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 CredentialError, got %v", err)
	}
}

func TestLoginUserFetchFailureLeavesStoreEmpty(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{})
	f.backend.ForceStatus(fakeapi.PathCurrentUser, http.StatusInternalServerError)

	_, err := f.client.Login(context.Background(), testUser, testPassword)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected wrapped 500, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("user fetch failure is not a credential error")
	}
	if !f.storedTokens(t).Empty() {
		t.Fatalf("store must stay empty when the user fetch fails")
	}
}

func TestLoginNetworkError(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{})
	f.server.Close()

	_, err := f.client.Login(context.Background(), testUser, testPassword)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected *NetworkError, got %T", err)
	}
}

func TestRegisterReturnsUserWithoutLoggingIn(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{})

	user, err := f.client.Register(context.Background(), "carol", "carol@example.com", "long-enough-pw")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Username != "carol" || user.ID == 0 {
		t.Fatalf("unexpected user %+v", user)
	}
	if !f.storedTokens(t).Empty() {
		t.Fatalf("register must not write the store")
	}
	if f.backend.Calls(fakeapi.PathToken) != 0 {
		t.Fatalf("register must not log in")
	}
}

func TestRegisterValidationErrorCarriesFields(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{})

	_, err := f.client.Register(context.Background(), testUser, "not-an-email", "short")
	if !errors.Is(err, ErrRegistrationInvalid) {
		t.Fatalf("expected ErrRegistrationInvalid, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	for _, field := range []string{"username", "email", "password"} {
		if len(ve.Field(field)) == 0 {
			t.Fatalf("expected messages for %s, got %v", field, ve.Fields)
		}
	}
	if ve.Message != "Registration failed" {
		t.Fatalf("unexpected message %q", ve.Message)
	}
	if got := f.client.MetricsSnapshot().Counters[MetricRegisterFailure]; got != 1 {
		t.Fatalf("expected MetricRegisterFailure=1, got %d", got)
	}
}

func TestRefreshKeepsRefreshTokenWithoutRotation(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{})
	ctx := context.Background()

	session, err := f.client.Login(ctx, testUser, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	res, err := f.client.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.AccessToken == "" || res.AccessToken == session.AccessToken {
		t.Fatalf("expected a new access token")
	}
	if res.Rotated || res.RefreshToken != session.RefreshToken {
		t.Fatalf("refresh token must be kept without rotation")
	}
	tokens := f.storedTokens(t)
	if tokens.AccessToken != res.AccessToken || tokens.RefreshToken != session.RefreshToken {
		t.Fatalf("store not updated with refreshed pair")
	}
	if res.Session().User.Username != testUser {
		t.Fatalf("expected refreshed session user")
	}
}

func TestRefreshStoresRotatedToken(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{RotateRefresh: true})
	ctx := context.Background()

	session, err := f.client.Login(ctx, testUser, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	res, err := f.client.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !res.Rotated || res.RefreshToken == session.RefreshToken {
		t.Fatalf("expected rotated refresh token")
	}
	if f.storedTokens(t).RefreshToken != res.RefreshToken {
		t.Fatalf("store should hold the rotated token")
	}
}

func TestRefreshWithoutTokenMakesNoCall(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{})

	_, err := f.client.Refresh(context.Background(), "")
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
	if f.backend.Calls(fakeapi.PathTokenRefresh) != 0 {
		t.Fatalf("expected no refresh call")
	}
}

func TestRefreshRejectedIsRefreshError(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{})
	ctx := context.Background()

	session, err := f.client.Login(ctx, testUser, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.backend.Revoke(session.RefreshToken)

	_, err = f.client.Refresh(ctx, session.RefreshToken)
	var re *RefreshError
	if !errors.As(err, &re) || re.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 RefreshError, got %v", err)
	}
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("RefreshError must match ErrRefreshFailed")
	}
}

func TestLogoutTwiceSucceeds(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{})
	ctx := context.Background()

	if _, err := f.client.Login(ctx, testUser, testPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}
	before := f.backend.Calls(fakeapi.PathToken) + f.backend.Calls(fakeapi.PathTokenRefresh)

	for i := 0; i < 2; i++ {
		if err := f.client.Logout(ctx); err != nil {
			t.Fatalf("Logout #%d: %v", i+1, err)
		}
		if !f.storedTokens(t).Empty() {
			t.Fatalf("store must be empty after logout")
		}
	}
	after := f.backend.Calls(fakeapi.PathToken) + f.backend.Calls(fakeapi.PathTokenRefresh)
	if before != after {
		t.Fatalf("logout must not call the backend")
	}
	if got := f.client.MetricsSnapshot().Counters[MetricLogout]; got != 2 {
		t.Fatalf("expected MetricLogout=2, got %d", got)
	}
}

func TestGatewayRecoversExpiredAccessToken(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{})
	ctx := context.Background()

	access, refresh, err := f.backend.IssueWithTTL(testUser, -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("IssueWithTTL: %v", err)
	}
	if err := f.store.Save(ctx, access, refresh); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var out struct {
		Count int `json:"count"`
	}
	if err := f.client.Gateway().DoJSON(ctx, http.MethodGet, fakeapi.PathTransactions, nil, &out); err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if f.backend.Calls(fakeapi.PathTokenRefresh) != 1 {
		t.Fatalf("expected one refresh")
	}
	if f.backend.Calls(fakeapi.PathTransactions) != 2 {
		t.Fatalf("expected original and retried call")
	}
	tokens := f.storedTokens(t)
	if tokens.AccessToken == access || tokens.RefreshToken != refresh {
		t.Fatalf("expected renewed access with the same refresh token")
	}

	snap := f.client.MetricsSnapshot()
	if snap.Counters[MetricRetry] != 1 || snap.Counters[MetricUnauthorizedReceived] != 1 {
		t.Fatalf("unexpected gateway metrics %+v", snap.Counters)
	}
}

func TestGatewayEndsSessionWhenRefreshRevoked(t *testing.T) {
	sink := NewChannelSink(16)
	f := newClientFixture(t, fakeapi.Options{}, func(b *Builder) {
		b.config.Audit.Enabled = true
		b.WithAuditSink(sink)
	})
	ctx := context.Background()

	access, refresh, err := f.backend.IssueWithTTL(testUser, -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("IssueWithTTL: %v", err)
	}
	f.backend.Revoke(refresh)
	_ = f.store.Save(ctx, access, refresh)

	var expired atomic.Int32
	f.client.OnSessionExpired(func() { expired.Add(1) })

	err = f.client.Gateway().DoJSON(ctx, http.MethodGet, fakeapi.PathSummary, nil, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if expired.Load() != 1 {
		t.Fatalf("expected one expiry notification, got %d", expired.Load())
	}
	if !f.storedTokens(t).Empty() {
		t.Fatalf("store must be cleared")
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType != auditEventSessionExpired {
				continue
			}
			if ev.Error != string(auditErrSessionExpired) || ev.Metadata["cause"] != string(auditErrRefreshRejected) {
				t.Fatalf("unexpected session expired event %+v", ev)
			}
			return
		case <-deadline:
			t.Fatalf("expected a session_expired audit event")
		}
	}
}

func TestOnSessionRenewedCarriesRefreshedSession(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{RotateRefresh: true})
	ctx := context.Background()

	access, refresh, err := f.backend.IssueWithTTL(testUser, -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("IssueWithTTL: %v", err)
	}
	_ = f.store.Save(ctx, access, refresh)

	renewed := make(chan *Session, 1)
	f.client.OnSessionRenewed(func(s *Session) { renewed <- s })

	if err := f.client.Gateway().DoJSON(ctx, http.MethodGet, fakeapi.PathSummary, nil, nil); err != nil {
		t.Fatalf("DoJSON: %v", err)
	}

	var s *Session
	select {
	case s = <-renewed:
	default:
		t.Fatal("expected a renewed session before the call returned")
	}
	tokens := f.storedTokens(t)
	if s.AccessToken != tokens.AccessToken || s.RefreshToken != tokens.RefreshToken {
		t.Fatal("renewed session must match the stored pair")
	}
	if s.RefreshToken == refresh {
		t.Fatal("expected the rotated refresh token")
	}
	if s.User.Username != testUser || s.AccessExpiresAt.IsZero() {
		t.Fatalf("unexpected renewed session %+v", s)
	}
}

func TestClosedClientKeepsSessionOnUnauthorized(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{})
	ctx := context.Background()

	access, refresh, err := f.backend.IssueWithTTL(testUser, -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("IssueWithTTL: %v", err)
	}
	_ = f.store.Save(ctx, access, refresh)

	var expired atomic.Int32
	f.client.OnSessionExpired(func() { expired.Add(1) })
	f.client.Close()

	err = f.client.Gateway().DoJSON(ctx, http.MethodGet, fakeapi.PathSummary, nil, nil)
	if !errors.Is(err, ErrRefreshUnavailable) || !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrRefreshUnavailable wrapping ErrClientClosed, got %v", err)
	}
	if errors.Is(err, ErrSessionExpired) {
		t.Fatal("closing the client must not expire the session")
	}
	if expired.Load() != 0 {
		t.Fatal("no expiry may be announced")
	}
	tokens := f.storedTokens(t)
	if tokens.AccessToken != access || tokens.RefreshToken != refresh {
		t.Fatal("the durable session must survive Close")
	}
	if f.backend.Calls(fakeapi.PathTokenRefresh) != 0 {
		t.Fatal("a closed client must not reach the refresh endpoint")
	}
}

type failingSaveStore struct {
	*tokenstore.Memory
	fail atomic.Bool
}

func (s *failingSaveStore) Save(ctx context.Context, access, refresh string) error {
	if s.fail.Load() {
		return errors.New("disk full")
	}
	return s.Memory.Save(ctx, access, refresh)
}

func TestRefreshStoreFailureKeepsSession(t *testing.T) {
	store := &failingSaveStore{Memory: tokenstore.NewMemory()}
	f := newClientFixture(t, fakeapi.Options{}, func(b *Builder) {
		b.WithTokenStore(store)
	})
	ctx := context.Background()

	access, refresh, err := f.backend.IssueWithTTL(testUser, -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("IssueWithTTL: %v", err)
	}
	_ = store.Save(ctx, access, refresh)
	store.fail.Store(true)

	var expired atomic.Int32
	f.client.OnSessionExpired(func() { expired.Add(1) })

	err = f.client.Gateway().DoJSON(ctx, http.MethodGet, fakeapi.PathSummary, nil, nil)
	if !errors.Is(err, ErrRefreshUnavailable) || !errors.Is(err, ErrTokenStore) {
		t.Fatalf("expected ErrRefreshUnavailable wrapping ErrTokenStore, got %v", err)
	}
	if expired.Load() != 0 {
		t.Fatal("a store failure must not expire the session")
	}
	tokens, _ := store.Load(ctx)
	if tokens.AccessToken != access || tokens.RefreshToken != refresh {
		t.Fatal("the stored session must be kept")
	}
}

func TestTracingWrapsTransport(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{}, func(b *Builder) {
		b.config.Tracing.Enabled = true
	})
	if _, ok := f.client.httpClient.Transport.(*otelhttp.Transport); !ok {
		t.Fatalf("expected otelhttp transport, got %T", f.client.httpClient.Transport)
	}
	if _, err := f.client.Login(context.Background(), testUser, testPassword); err != nil {
		t.Fatalf("Login through traced transport: %v", err)
	}
}

func TestBuildRedisBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TokenStore.Backend = TokenStoreRedis

	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatalf("expected error without redis client")
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	client, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer client.Close()

	if err := client.store.Save(context.Background(), "a1", "r1"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, _ := mr.Get("finauth:accessToken"); got != "a1" {
		t.Fatalf("expected access token in redis, got %q", got)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New()
	if _, err := b.Build(); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatalf("expected second Build to fail")
	}
}

func TestClosedClientRejectsExchange(t *testing.T) {
	f := newClientFixture(t, fakeapi.Options{})
	f.client.Close()

	if _, err := f.client.Login(context.Background(), testUser, testPassword); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
	if err := f.client.Logout(context.Background()); err != nil {
		t.Fatalf("Logout after Close: %v", err)
	}
}
