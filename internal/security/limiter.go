package security

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/antoine78910/ecomefficiency-sub002/internal/constants"
	"github.com/antoine78910/ecomefficiency-sub002/internal/utils"
)

// CounterStore is the backing store for per-IP request counters. Counters
// are abuse telemetry only; no proxy session state ever lives server-side.
type CounterStore interface {
	// Incr bumps the counter for key within the current window and
	// returns the new count.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Close() error
}

// RequestLimiter caps requests per client IP per window.
type RequestLimiter struct {
	store  CounterStore
	max    int64
	window time.Duration
}

func NewRequestLimiter(store CounterStore, max int64, window time.Duration) *RequestLimiter {
	return &RequestLimiter{store: store, max: max, window: window}
}

// Allow reports whether the client may make another request. A store error
// fails open: a broken Redis must degrade to "no limiting", not to a
// broken proxy.
func (rl *RequestLimiter) Allow(ctx context.Context, ip string) bool {
	count, err := rl.store.Incr(ctx, ip, rl.window)
	if err != nil {
		log.Printf("⚠️  Rate limit store error for %s: %v", ip, err)
		return true
	}
	return count <= rl.max
}

func (rl *RequestLimiter) Close() error {
	return rl.store.Close()
}

// NewCounterStore picks the Redis-backed store when REDIS_HOST is set and
// reachable, and falls back to the in-memory store otherwise.
func NewCounterStore() CounterStore {
	redisHost := utils.GetEnv(constants.EnvRedisHost, "")
	if redisHost != "" {
		redisPort := utils.GetEnv(constants.EnvRedisPort, "6379")
		redisUser := utils.GetEnv(constants.EnvRedisUser, "")
		redisPassword := utils.GetEnv(constants.EnvRedisPass, "")

		store, err := NewRedisCounterStore(redisHost, redisPort, redisUser, redisPassword)
		if err != nil {
			log.Printf("⚠️  Redis connection failed: %v", err)
			log.Println("💾 Falling back to in-memory rate limit counters")
			return NewMemoryCounterStore()
		}
		log.Printf("💾 Using Redis rate limit counters: %s:%s", redisHost, redisPort)
		return store
	}

	log.Println("💾 Using in-memory rate limit counters")
	return NewMemoryCounterStore()
}

// MemoryCounterStore keeps windowed counters in process memory.
type MemoryCounterStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	count int64
	start time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	st := &MemoryCounterStore{buckets: make(map[string]*bucket)}
	go st.cleanupLoop()
	return st
}

func (st *MemoryCounterStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()
	b, ok := st.buckets[key]
	if !ok || now.Sub(b.start) > window {
		b = &bucket{start: now}
		st.buckets[key] = b
	}
	b.count++
	return b.count, nil
}

func (st *MemoryCounterStore) Close() error { return nil }

func (st *MemoryCounterStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		st.mu.Lock()
		for key, b := range st.buckets {
			if time.Since(b.start) > 2*constants.RateLimitWindow {
				delete(st.buckets, key)
			}
		}
		st.mu.Unlock()
	}
}
