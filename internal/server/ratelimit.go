package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// kindRateLimited marks requests rejected by the rate limiter.
	kindRateLimited = "rate_limited"

	// defaultRateLimit is the sustained per-IP token refill rate per second.
	defaultRateLimit = 10

	// defaultRateBurst is the per-IP bucket size.
	defaultRateBurst = 20

	// uploadCost is the number of tokens an upload consumes. An upload
	// embeds every chunk of the document, a question embeds one string.
	uploadCost = 5

	// idleTTL is how long an IP bucket survives without traffic.
	idleTTL = 5 * time.Minute
)

// bucket is one client's token bucket and when it was last used.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token bucket on the document routes. Routes
// declare a cost in tokens so expensive operations drain the bucket faster.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	now     func() time.Time
	log     *slog.Logger
}

// newRateLimiter constructs a rateLimiter and starts a goroutine that drops
// idle buckets once a minute. Call the returned stop function to end it.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		log:     log,
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rl.sweep()
			}
		}
	}()

	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

// take consumes cost tokens from ip's bucket. It returns zero when the
// request may proceed, or how long the client should wait otherwise.
func (rl *rateLimiter) take(ip string, cost int) time.Duration {
	rl.mu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = b
	}
	now := rl.now()
	b.lastSeen = now
	rl.mu.Unlock()

	// A cost above the burst can never be satisfied; charge the full bucket.
	cost = min(cost, rl.burst)
	res := b.limiter.ReserveN(now, cost)
	if !res.OK() {
		return time.Second
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
		return delay
	}
	return 0
}

// sweep drops buckets idle for longer than idleTTL.
func (rl *rateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idleTTL)
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

// size returns the number of tracked clients.
func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// limit wraps next so each request costs cost tokens. Rejected requests get
// 429 with a Retry-After header rounded up to whole seconds.
func (rl *rateLimiter) limit(cost int, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		wait := rl.take(ip, cost)
		if wait == 0 {
			next.ServeHTTP(w, r)
			return
		}

		retry := int(math.Ceil(wait.Seconds()))
		loggerFor(r).Warn("rate limit exceeded",
			slog.String("ip", ip),
			slog.String("path", r.URL.Path),
			slog.Int("cost", cost),
			slog.Int("retry_after_s", retry),
		)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeJSON(w, r, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded", Kind: kindRateLimited})
	})
}

// clientIP returns the host part of RemoteAddr. X-Forwarded-For is ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
