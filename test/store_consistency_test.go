//go:build integration
// +build integration

package test

import (
	"context"
	"net/http"
	"testing"

	"github.com/MrEthical07/finAuth/authstate"
	"github.com/MrEthical07/finAuth/internal/fakeapi"
)

func TestLoginPersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, fakeapi.Options{})

	first := s.client(t)
	if _, err := first.Login(ctx, testUser, testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !s.mr.Exists(redisPrefix+":accessToken") || !s.mr.Exists(redisPrefix+":refreshToken") {
		t.Fatal("expected both keys in Redis after login")
	}
	first.Close()

	second := s.client(t)
	ctrl := authstate.New(second)
	defer ctrl.Close()

	state := ctrl.Bootstrap(ctx)
	if state.Kind != authstate.Authenticated {
		t.Fatalf("expected Authenticated after restart, got %v (%v)", state.Kind, state.Err)
	}
	if state.Session.User.Username != testUser {
		t.Fatalf("unexpected user %q", state.Session.User.Username)
	}
	if err := second.Gateway().DoJSON(ctx, http.MethodGet, fakeapi.PathSummary, nil, nil); err != nil {
		t.Fatalf("summary call failed: %v", err)
	}
}

func TestLogoutClearsRedis(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, fakeapi.Options{})
	c := s.client(t)

	if _, err := c.Login(ctx, testUser, testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if s.mr.Exists(redisPrefix+":accessToken") || s.mr.Exists(redisPrefix+":refreshToken") {
		t.Fatal("expected Redis keys removed after logout")
	}

	ctrl := authstate.New(s.client(t))
	defer ctrl.Close()
	if got := ctrl.Bootstrap(ctx).Kind; got != authstate.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", got)
	}
}

func TestRedisOutageKeepsSession(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, fakeapi.Options{})
	c := s.client(t)

	if _, err := c.Login(ctx, testUser, testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	s.mr.SetError("LOADING")
	if _, err := c.Tokens(ctx); err == nil {
		t.Fatal("expected Tokens to fail while Redis errors")
	}
	s.mr.SetError("")

	tokens, err := c.Tokens(ctx)
	if err != nil {
		t.Fatalf("Tokens failed after recovery: %v", err)
	}
	if !tokens.HasRefresh() {
		t.Fatal("a store outage must not end the session")
	}
}
