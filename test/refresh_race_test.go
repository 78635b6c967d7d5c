//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	finAuth "github.com/MrEthical07/finAuth"
	"github.com/MrEthical07/finAuth/internal/fakeapi"
)

const callers = 24

func runWave(t *testing.T, c *finAuth.Client) []error {
	t.Helper()

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = c.Gateway().DoJSON(context.Background(), http.MethodGet, fakeapi.PathTransactions, nil, nil)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestConcurrentUnauthorizedSingleRefresh(t *testing.T) {
	s := newStack(t, fakeapi.Options{})
	s.backend.SetRefreshDelay(100 * time.Millisecond)
	c := s.client(t)
	_, refresh := s.seedExpired(t)

	for i, err := range runWave(t, c) {
		if err != nil {
			t.Fatalf("caller %d failed: %v", i, err)
		}
	}

	if got := s.backend.Calls(fakeapi.PathTokenRefresh); got != 1 {
		t.Fatalf("expected one refresh call, got %d", got)
	}
	if got := s.backend.Calls(fakeapi.PathTransactions); got != 2*callers {
		t.Fatalf("expected %d resource calls, got %d", 2*callers, got)
	}

	tokens, err := s.store().Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if tokens.RefreshToken != refresh {
		t.Fatal("refresh token must survive a refresh without rotation")
	}

	snap := c.MetricsSnapshot()
	if got := snap.Counters[finAuth.MetricRetry]; got != callers {
		t.Fatalf("expected %d retries, got %d", callers, got)
	}
	if got := snap.Counters[finAuth.MetricRefreshCoalesced]; got == 0 {
		t.Fatal("expected coalesced refresh waiters")
	}
}

func TestConcurrentUnauthorizedWithRotation(t *testing.T) {
	s := newStack(t, fakeapi.Options{RotateRefresh: true})
	s.backend.SetRefreshDelay(100 * time.Millisecond)
	c := s.client(t)
	_, refresh := s.seedExpired(t)

	for i, err := range runWave(t, c) {
		if err != nil {
			t.Fatalf("caller %d failed: %v", i, err)
		}
	}

	if got := s.backend.Calls(fakeapi.PathTokenRefresh); got != 1 {
		t.Fatalf("a rotating backend must see one refresh, got %d", got)
	}
	tokens, err := s.store().Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if tokens.RefreshToken == "" || tokens.RefreshToken == refresh {
		t.Fatal("expected the rotated refresh token in Redis")
	}
}

func TestConcurrentUnauthorizedRevokedRefresh(t *testing.T) {
	s := newStack(t, fakeapi.Options{})
	s.backend.SetRefreshDelay(100 * time.Millisecond)
	c := s.client(t)
	_, refresh := s.seedExpired(t)
	s.backend.Revoke(refresh)

	var expired atomic.Int32
	c.OnSessionExpired(func() { expired.Add(1) })

	for i, err := range runWave(t, c) {
		if !errors.Is(err, finAuth.ErrSessionExpired) {
			t.Fatalf("caller %d: expected ErrSessionExpired, got %v", i, err)
		}
	}
	if expired.Load() == 0 {
		t.Fatal("expected the session-expired signal")
	}
	if s.mr.Exists(redisPrefix+":accessToken") || s.mr.Exists(redisPrefix+":refreshToken") {
		t.Fatal("expected Redis keys cleared after a rejected refresh")
	}
	if got := s.backend.Calls(fakeapi.PathTransactions); got != callers {
		t.Fatalf("no call should be retried after a failed refresh, got %d calls", got)
	}
}
