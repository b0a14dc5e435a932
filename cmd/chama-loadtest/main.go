// Command chama-loadtest measures session store latency under concurrent
// browser traffic: record reads, login state updates and token writes.
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

	"github.com/MrEthical07/chamaWeb/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type opFunc func(ctx context.Context, store *session.Store, sid string, i int) error

func main() {
	var (
		sessions    = flag.Int("sessions", 50000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "chama:sess", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
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

	store := session.NewStore(client, *prefix)

	ids := make([]string, *sessions)
	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := range ids {
		rec := &session.Session{
			SessionID: session.NewID(),
			Phone:     fmt.Sprintf("2547%08d", i),
		}
		if err := store.Save(ctx, rec, 24*time.Hour); err != nil {
			fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			os.Exit(1)
		}
		ids[i] = rec.SessionID
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	phases := []struct {
		name string
		op   opFunc
	}{
		{"read", readOp},
		{"login-state", loginStateOp},
		{"token", tokenOp},
	}

	results := make([]phaseStats, len(phases))
	for i, p := range phases {
		results[i] = runPhase(ctx, store, ids, *ops, *concurrency, p.op)
	}

	fmt.Println("---- results ----")
	for i, p := range phases {
		printStats(p.name, results[i])
	}
}

func readOp(ctx context.Context, store *session.Store, sid string, _ int) error {
	_, err := store.Get(ctx, sid)
	return err
}

// loginStateOp walks a record through awaiting-confirmation and back, the
// writes a browser polling its handshake causes.
func loginStateOp(ctx context.Context, store *session.Store, sid string, i int) error {
	return store.Update(ctx, sid, func(rec *session.Session) error {
		if rec.LoginState == session.LoginAwaiting {
			rec.LoginState = session.LoginSucceeded
			rec.LoginMessage = ""
			return nil
		}
		rec.LoginState = session.LoginAwaiting
		rec.LoginRequestID = fmt.Sprintf("req-%d", i)
		return nil
	})
}

func tokenOp(ctx context.Context, store *session.Store, sid string, i int) error {
	return store.Bind(sid).SetToken(ctx, fmt.Sprintf("token-%d", i))
}

func runPhase(ctx context.Context, store *session.Store, ids []string, ops, concurrency int, op opFunc) phaseStats {
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
				sid := ids[r.Intn(len(ids))]
				t0 := time.Now()
				err := op(ctx, store, sid, i)
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
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
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
