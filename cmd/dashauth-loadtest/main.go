// Command dashauth-loadtest drives concurrent invocations against a
// temporary credential file and reports latency percentiles per phase.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/dashauth"
	"github.com/MrEthical07/dashauth/password"
	"github.com/MrEthical07/dashauth/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const seedPassword = "loadtest-password"

func main() {
	var (
		users       = flag.Int("users", 200, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 16, "number of concurrent workers")
		ops         = flag.Int("ops", 2000, "invocations per phase")
		memory      = flag.Uint("argon-memory", 8*1024, "argon2id memory in KiB")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
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
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	dir, err := os.MkdirTemp("", "dashauth-loadtest-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "temp dir: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = os.RemoveAll(dir) }()
	path := filepath.Join(dir, "config.yaml")

	cfg := dashauth.DefaultConfig()
	cfg.Password.Memory = uint32(*memory)
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Security.MaxLoginAttempts = 1 << 20
	cfg.Persistence.LockTimeout = time.Minute

	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	if err := seed(ctx, path, cfg, *users); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	engine, err := dashauth.New().WithConfig(cfg).WithFile(path).WithRedis(client).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	cookies := make([]string, *users)
	loginStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		idx := r.Intn(*users)
		resp, err := engine.Handle(ctx, dashauth.Request{
			Login: dashauth.LoginInput{Username: username(idx), Password: seedPassword},
		})
		if err != nil {
			return err
		}
		if resp.LoginErr != nil {
			return resp.LoginErr
		}
		if resp.Cookie.Action == dashauth.CookieSet {
			setCookie(cookies, idx, resp.Cookie.Value)
		}
		return nil
	})

	cookieStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		idx := r.Intn(*users)
		resp, err := engine.Handle(ctx, dashauth.Request{
			Login: dashauth.LoginInput{Cookie: getCookie(cookies, idx)},
		})
		if err != nil {
			return err
		}
		if !resp.Session.Authenticated() {
			return fmt.Errorf("%s: cookie rejected", username(idx))
		}
		return nil
	})

	updateStats := runPhase(*ops, *concurrency, func(r *rand.Rand, i int) error {
		idx := r.Intn(*users)
		name := fmt.Sprintf("User %d rev %d", idx, i)
		resp, err := engine.Handle(ctx, dashauth.Request{
			Login:         dashauth.LoginInput{Cookie: getCookie(cookies, idx)},
			UpdateProfile: &dashauth.ProfileUpdate{Username: username(idx), DisplayName: &name},
		})
		if err != nil {
			return err
		}
		if resp.ActionErr != nil {
			return resp.ActionErr
		}
		return resp.PersistErr
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("cookie", cookieStats)
	printStats("update", updateStats)
}

func seed(ctx context.Context, path string, cfg dashauth.Config, users int) error {
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(seedPassword)
	if err != nil {
		return err
	}

	s := store.New(store.CookiePolicy{
		Name:       "loadtest_cookie",
		Key:        "loadtest-signing-key-0123456789abcdef",
		ExpiryDays: 1,
	})
	for i := 0; i < users; i++ {
		rec := store.UserRecord{
			Email:    fmt.Sprintf("%s@example.com", username(i)),
			Name:     fmt.Sprintf("User %d", i),
			Password: hash,
		}
		if err := s.Insert(username(i), rec); err != nil {
			return err
		}
	}
	return store.NewFileBackend(path).Save(ctx, s)
}

func username(i int) string {
	return fmt.Sprintf("user%05d", i)
}

var cookieMu sync.RWMutex

func setCookie(cookies []string, idx int, value string) {
	cookieMu.Lock()
	cookies[idx] = value
	cookieMu.Unlock()
}

func getCookie(cookies []string, idx int) string {
	cookieMu.RLock()
	defer cookieMu.RUnlock()
	return cookies[idx]
}

// runPhase calls op ops times across concurrency workers. An empty cookie
// slot in later phases simply counts as a failure.
func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
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
				t0 := time.Now()
				err := op(r, i)
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
	return computeStats(time.Since(start), latencies, failures)
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%-6s ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
