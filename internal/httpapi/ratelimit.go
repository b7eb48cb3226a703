package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const blockDuration = 5 * time.Minute
const failWindow = time.Minute
const maxFailures = 3

// RateLimiter implements spec §6's per-IP request ceiling and the
// temporary block after repeated auth failures: 60 req/min/IP by default,
// and 3 failed auths within 1 min trigger a 5 min block.
type RateLimiter struct {
	reqPerMin int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	failures map[string][]time.Time
	blocked  map[string]time.Time
}

func NewRateLimiter(reqPerMin int) *RateLimiter {
	if reqPerMin <= 0 {
		reqPerMin = 60
	}
	return &RateLimiter{
		reqPerMin: reqPerMin,
		limiters:  make(map[string]*rate.Limiter),
		failures:  make(map[string][]time.Time),
		blocked:   make(map[string]time.Time),
	}
}

func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(rl.reqPerMin)/60.0), rl.reqPerMin)
		rl.limiters[ip] = l
	}
	return l
}

// Allow reports whether ip may proceed: not IP-blocked, and under the
// token-bucket ceiling.
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.isBlocked(ip) {
		return false
	}
	return rl.limiterFor(ip).Allow()
}

func (rl *RateLimiter) isBlocked(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	until, ok := rl.blocked[ip]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(rl.blocked, ip)
		return false
	}
	return true
}

// RecordAuthFailure registers a failed auth attempt for ip, blocking it for
// blockDuration once maxFailures happen within failWindow.
func (rl *RateLimiter) RecordAuthFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-failWindow)
	attempts := rl.failures[ip]
	var recent []time.Time
	for _, t := range attempts {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	recent = append(recent, now)
	rl.failures[ip] = recent

	if len(recent) >= maxFailures {
		rl.blocked[ip] = now.Add(blockDuration)
		delete(rl.failures, ip)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.Allow(ip) {
			writeError(w, http.StatusTooManyRequests, "overloaded", "rate limit exceeded, retry later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" || key != s.apiKey {
			s.limiter.RecordAuthFailure(clientIP(r))
			writeError(w, http.StatusUnauthorized, "auth", "missing or invalid X-API-Key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
