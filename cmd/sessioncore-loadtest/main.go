// Command sessioncore-loadtest measures authorize and refresh throughput
// against a live engine. It seeds a set of accounts, logs each session in,
// then drives two phases: a read-only authorize phase (pure token
// verification) and a refresh phase (token rotation with Redis round trips).
//
// By default it runs against an embedded miniredis so no external Redis is
// needed. Point it at a real instance with -redis-addr or REDIS_ADDR to get
// representative numbers.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	sessioncore "github.com/tverran/sessioncore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

type sessionState struct {
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		accounts    = flag.Int("accounts", 32, "number of accounts to seed")
		sessions    = flag.Int("sessions", 512, "number of live sessions to open")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (authorize + refresh)")
		rps         = flag.Float64("rate", 0, "target ops/sec across all workers; 0 means unpaced")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := sessioncore.DefaultConfig()
	cfg.Token.PrivateKey = []byte("loadtest-signing-key-loadtest-key")
	// Floor Argon2 parameters keep seeding cheap; login cost is not what
	// this tool measures.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.RateLimit.Enabled = false
	cfg.Metrics.Enabled = true

	engine, err := sessioncore.New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	const password = "loadtest-password-1"

	fmt.Printf("seeding %d accounts...\n", *accounts)
	emails := make([]string, *accounts)
	startSeed := time.Now()
	for i := range emails {
		emails[i] = fmt.Sprintf("load-%d@example.com", i)
		if _, err := engine.CreateAccount(ctx, sessioncore.CreateAccountRequest{
			Email:       emails[i],
			Password:    password,
			Permissions: []string{"loadtest.run"},
		}); err != nil {
			fmt.Fprintf(os.Stderr, "create account: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	fmt.Printf("opening %d sessions...\n", *sessions)
	states := make([]sessionState, *sessions)
	startLogin := time.Now()
	for i := range states {
		result, err := engine.Login(ctx, emails[i%len(emails)], password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "login: %v\n", err)
			os.Exit(1)
		}
		states[i].access = result.Tokens.AccessToken
		states[i].refresh = result.Tokens.RefreshToken
	}
	fmt.Printf("opened in %s\n", time.Since(startLogin).Round(time.Millisecond))

	pacer := newPacer(*rps, *concurrency)

	authorizeStats := runAuthorizePhase(ctx, engine, states, *ops, *concurrency, pacer)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency, pacer)

	fmt.Println("---- results ----")
	printStats("authorize", authorizeStats)
	printStats("refresh", refreshStats)
}

// newPacer returns a shared limiter capping the target rate, or nil when the
// run is unpaced.
func newPacer(rps float64, concurrency int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := concurrency
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func runAuthorizePhase(ctx context.Context, engine *sessioncore.Engine, states []sessionState, ops, concurrency int, pacer *rate.Limiter) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				if pacer != nil {
					if err := pacer.Wait(ctx); err != nil {
						return
					}
				}
				idx := r.Intn(len(states))
				t0 := time.Now()
				_, err := engine.Authorize(ctx, states[idx].access, "loadtest.run")
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runRefreshPhase(ctx context.Context, engine *sessioncore.Engine, states []sessionState, ops, concurrency int, pacer *rate.Limiter) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				if pacer != nil {
					if err := pacer.Wait(ctx); err != nil {
						return
					}
				}
				idx := r.Intn(len(states))
				state := &states[idx]

				// Rotation must be serialized per session or every
				// concurrent attempt after the first reads as reuse.
				state.mu.Lock()
				t0 := time.Now()
				result, err := engine.Refresh(ctx, state.refresh)
				d := time.Since(t0)
				if err == nil {
					state.access = result.Tokens.AccessToken
					state.refresh = result.Tokens.RefreshToken
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
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
		s.p50,
		s.p95,
		s.p99,
	)
}
