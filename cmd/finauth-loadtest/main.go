// Command finauth-loadtest drives concurrent gateway calls against an
// in-process fake backend whose access tokens expire quickly, and reports
// how many refresh exchanges reached the backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	finAuth "github.com/MrEthical07/finAuth"
	"github.com/MrEthical07/finAuth/internal/fakeapi"
	"github.com/MrEthical07/finAuth/tokenstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "gateway calls to issue")
		accessTTL   = flag.Duration("access-ttl", 200*time.Millisecond, "access token lifetime issued by the fake backend")
		rotate      = flag.Bool("rotate", false, "rotate refresh tokens on every refresh")
		proactive   = flag.Bool("proactive", false, "renew expiring access tokens before dispatch")
		store       = flag.String("store", "memory", "token store: memory or redis")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *concurrency <= 0 || *ops <= 0 || *accessTTL <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency, ops, and access-ttl must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	backend := fakeapi.New(fakeapi.Options{AccessTTL: *accessTTL, RotateRefresh: *rotate})
	backend.AddUser("load", "load@example.com", "load-password", false)
	srv := httptest.NewServer(backend)
	defer srv.Close()

	cfg := finAuth.DefaultConfig()
	cfg.API.BaseURL = srv.URL
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Refresh.Proactive = *proactive
	cfg.Refresh.Leeway = *accessTTL / 4

	builder := finAuth.New().WithConfig(cfg).WithHTTPClient(&http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *concurrency,
			MaxIdleConnsPerHost: *concurrency,
		},
	})

	cleanup := func() {}
	if *store == "redis" {
		rdb, done, err := openRedis(*redisAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			os.Exit(1)
		}
		cleanup = done
		builder = builder.WithTokenStore(tokenstore.NewRedis(rdb, "finauth-loadtest"))
	}
	defer cleanup()

	client, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if _, err := client.Login(ctx, "load", "load-password"); err != nil {
		fmt.Fprintf(os.Stderr, "login: %v\n", err)
		os.Exit(1)
	}
	backend.ResetCalls()

	stats := runPhase(ctx, client, *ops, *concurrency)

	snap := client.MetricsSnapshot()
	fmt.Println("---- results ----")
	printStats("gateway", stats)
	fmt.Printf("backend: refresh_calls=%d resource_calls=%d\n",
		backend.Calls(fakeapi.PathTokenRefresh),
		backend.Calls(fakeapi.PathTransactions),
	)
	fmt.Printf("client: unauthorized=%d retries=%d coalesced=%d session_expired=%d\n",
		snap.Counters[finAuth.MetricUnauthorizedReceived],
		snap.Counters[finAuth.MetricRetry],
		snap.Counters[finAuth.MetricRefreshCoalesced],
		snap.Counters[finAuth.MetricSessionExpired],
	)
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func runPhase(ctx context.Context, client *finAuth.Client, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	gw := client.Gateway()
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := gw.DoJSON(ctx, http.MethodGet, fakeapi.PathTransactions, nil, nil)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
