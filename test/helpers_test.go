//go:build integration
// +build integration

package test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	finAuth "github.com/MrEthical07/finAuth"
	"github.com/MrEthical07/finAuth/internal/fakeapi"
	"github.com/MrEthical07/finAuth/tokenstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testUser     = "alice"
	testPassword = "correct-horse-42"
	redisPrefix  = "it"
)

// stack is a client wired to a fake API with its tokens in miniredis.
type stack struct {
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	backend *fakeapi.Backend
	server  *httptest.Server
	cfg     finAuth.Config
}

func newStack(t *testing.T, opts fakeapi.Options) *stack {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	backend := fakeapi.New(opts)
	backend.AddUser(testUser, "alice@example.com", testPassword, false)
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	cfg := finAuth.DefaultConfig()
	cfg.API.BaseURL = server.URL
	cfg.TokenStore.Backend = finAuth.TokenStoreRedis
	cfg.TokenStore.RedisPrefix = redisPrefix
	cfg.Metrics.Enabled = true

	return &stack{mr: mr, rdb: rdb, backend: backend, server: server, cfg: cfg}
}

// client builds a fresh client over the shared Redis, as a restarted
// process would.
func (s *stack) client(t *testing.T) *finAuth.Client {
	t.Helper()

	c, err := finAuth.New().WithConfig(s.cfg).WithRedis(s.rdb).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func (s *stack) store() *tokenstore.Redis {
	return tokenstore.NewRedis(s.rdb, redisPrefix)
}

// seedExpired stores an already-expired access token with a live refresh
// token.
func (s *stack) seedExpired(t *testing.T) (access, refresh string) {
	t.Helper()

	access, refresh, err := s.backend.IssueWithTTL(testUser, -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("IssueWithTTL failed: %v", err)
	}
	if err := s.store().Save(context.Background(), access, refresh); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return access, refresh
}
