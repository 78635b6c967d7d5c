package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	finAuth "github.com/MrEthical07/finAuth"
	"github.com/MrEthical07/finAuth/internal/fakeapi"
	"github.com/sethvargo/go-envconfig"
)

type cliFixture struct {
	env     map[string]string
	backend *fakeapi.Backend
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()

	backend := fakeapi.New(fakeapi.Options{})
	backend.AddUser("alice", "alice@example.com", "Secret123!", false)
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	return &cliFixture{
		backend: backend,
		env: map[string]string{
			"FINAUTH_API_URL":    server.URL,
			"FINAUTH_TOKEN_FILE": filepath.Join(t.TempDir(), "tokens.json"),
			"FINAUTH_LOG_LEVEL":  "error",
		},
	}
}

func (f *cliFixture) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand(envconfig.MapLookuper(f.env))
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoginThenAuthenticatedCommands(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "Secret123!\n", "login", "-u", "alice", "--password-stdin")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !strings.Contains(out, "logged in as alice") {
		t.Fatalf("unexpected login output %q", out)
	}

	out, err = f.run(t, "", "whoami")
	if err != nil {
		t.Fatalf("whoami failed: %v", err)
	}
	if !strings.HasPrefix(out, "alice <alice@example.com>") {
		t.Fatalf("unexpected whoami output %q", out)
	}

	out, err = f.run(t, "", "get", "api/v1/finance/summary/")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !strings.Contains(out, `"balance": "0.00"`) {
		t.Fatalf("unexpected get output %q", out)
	}

	out, err = f.run(t, "", "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.HasPrefix(out, "authenticated as alice") {
		t.Fatalf("unexpected status output %q", out)
	}
}

func TestLogoutForgetsSession(t *testing.T) {
	f := newCLIFixture(t)
	f.env["FINAUTH_PASSWORD"] = "Secret123!"
	f.env["FINAUTH_USERNAME"] = "alice"

	if _, err := f.run(t, "", "login"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := f.run(t, "", "logout"); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	out, err := f.run(t, "", "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.HasPrefix(out, "not logged in") {
		t.Fatalf("unexpected status output %q", out)
	}
	if _, err := f.run(t, "", "whoami"); err == nil {
		t.Fatal("expected whoami to fail without a session")
	}
}

func TestLoginRejectedMessage(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run(t, "wrong\n", "login", "-u", "alice", "--password-stdin")
	if err == nil {
		t.Fatal("expected login to fail")
	}
	if msg := describeError(err); !strings.HasPrefix(msg, "login rejected") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestRegisterDoesNotLogIn(t *testing.T) {
	f := newCLIFixture(t)
	f.env["FINAUTH_PASSWORD"] = "Another123!"

	out, err := f.run(t, "", "register", "-u", "bob", "--email", "bob@example.com")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if !strings.Contains(out, "registered bob") {
		t.Fatalf("unexpected register output %q", out)
	}
	if got := f.backend.Calls(fakeapi.PathToken); got != 0 {
		t.Fatalf("expected no token calls, got %d", got)
	}

	out, err = f.run(t, "", "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.HasPrefix(out, "not logged in") {
		t.Fatalf("unexpected status output %q", out)
	}
}

func TestRegisterValidationMessageListsFields(t *testing.T) {
	f := newCLIFixture(t)
	f.env["FINAUTH_PASSWORD"] = "Another123!"

	_, err := f.run(t, "", "register", "-u", "alice", "--email", "alice2@example.com")
	if err == nil {
		t.Fatal("expected duplicate username to fail")
	}
	if msg := describeError(err); !strings.Contains(msg, "username:") {
		t.Fatalf("expected username field in %q", msg)
	}
}

func TestLoadEnvDefaults(t *testing.T) {
	env, err := loadEnv(context.Background(), envconfig.MapLookuper(map[string]string{
		"FINAUTH_API_URL": "http://env.invalid",
		"FINAUTH_TIMEOUT": "5s",
	}))
	if err != nil {
		t.Fatalf("loadEnv failed: %v", err)
	}
	if env.APIURL != "http://env.invalid" {
		t.Fatalf("expected env URL, got %q", env.APIURL)
	}
	if env.Timeout.String() != "5s" {
		t.Fatalf("expected 5s timeout, got %v", env.Timeout)
	}
	if env.LogLevel != "warn" || env.LogFormat != "text" {
		t.Fatalf("unexpected log defaults %q/%q", env.LogLevel, env.LogFormat)
	}
	if filepath.Base(env.TokenFile) != "tokens.json" {
		t.Fatalf("unexpected default token file %q", env.TokenFile)
	}
}

func TestAPIFlagOverridesEnvironment(t *testing.T) {
	f := newCLIFixture(t)
	good := f.env["FINAUTH_API_URL"]
	f.env["FINAUTH_API_URL"] = "http://127.0.0.1:1"
	f.env["FINAUTH_PASSWORD"] = "Secret123!"

	if _, err := f.run(t, "", "login", "-u", "alice", "--api", good); err != nil {
		t.Fatalf("login with --api failed: %v", err)
	}
}

func TestDescribeErrorRefreshUnavailable(t *testing.T) {
	err := fmt.Errorf("GET /api/v1/users/me/: %w: %w", finAuth.ErrRefreshUnavailable, finAuth.ErrTokenStore)
	msg := describeError(err)
	if !strings.HasPrefix(msg, "could not renew the session") {
		t.Fatalf("unexpected message %q", msg)
	}
}
