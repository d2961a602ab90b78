package server

import (
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// limiterIdleTTL is how long an idle client's limiter is kept.
	limiterIdleTTL = 10 * time.Minute
	// limiterSweepInterval is the minimum time between idle sweeps.
	limiterSweepInterval = time.Minute
	// maxClientLimiters caps the number of tracked clients. When full, the least
	// recently seen half is dropped.
	maxClientLimiters = 10000
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client IP.
type RateLimiter struct {
	mu        sync.Mutex
	limits    map[string]*clientLimiter
	rps       rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second per client,
// with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limits:    make(map[string]*clientLimiter),
		rps:       rate.Limit(rps),
		burst:     burst,
		now:       time.Now,
		lastSweep: time.Now(),
	}
}

// getLimiter gets or creates a limiter for the given key.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if cl, ok := rl.limits[key]; ok {
		cl.lastSeen = now
		return cl.limiter
	}
	if now.Sub(rl.lastSweep) >= limiterSweepInterval {
		rl.sweepIdle(now)
	}
	if len(rl.limits) >= maxClientLimiters {
		rl.evictOldest(len(rl.limits) / 2)
	}
	cl := &clientLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst), lastSeen: now}
	rl.limits[key] = cl
	return cl.limiter
}

// sweepIdle drops limiters unused for limiterIdleTTL. Callers hold rl.mu.
func (rl *RateLimiter) sweepIdle(now time.Time) {
	for k, cl := range rl.limits {
		if now.Sub(cl.lastSeen) > limiterIdleTTL {
			delete(rl.limits, k)
		}
	}
	rl.lastSweep = now
}

// evictOldest drops the n least recently seen limiters. Callers hold rl.mu.
func (rl *RateLimiter) evictOldest(n int) {
	keys := make([]string, 0, len(rl.limits))
	for k := range rl.limits {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return rl.limits[keys[i]].lastSeen.Before(rl.limits[keys[j]].lastSeen)
	})
	for _, k := range keys[:n] {
		delete(rl.limits, k)
	}
}

// Allow checks if a request is allowed for the given key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Middleware rejects requests over the client's limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
