// Package ratelimit provides a per-key sliding window limiter and the HTTP
// middleware that applies it per client IP.
package ratelimit

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limiter implements a sliding window rate limiter
type Limiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

// New allows limit requests per key within window. A limit <= 0 disables limiting.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow records a request for key and reports whether it is within the limit
func (l *Limiter) Allow(key string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	valid := inWindow(l.requests[key], now.Add(-l.window))
	if len(valid) >= l.limit {
		l.requests[key] = valid
		return false
	}
	l.requests[key] = append(valid, now)
	return true
}

// RetryAfter is the number of seconds until key may send again, 0 when it
// is not limited
func (l *Limiter) RetryAfter(key string) int {
	if l.limit <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	valid := inWindow(l.requests[key], now.Add(-l.window))
	if len(valid) < l.limit {
		return 0
	}
	// the oldest request leaving the window frees a slot
	wait := valid[len(valid)-l.limit].Add(l.window).Sub(now)
	return max(1, int(math.Ceil(wait.Seconds())))
}

// Run drops stale keys every interval until ctx is done
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := l.now().Add(-l.window)
	for key, times := range l.requests {
		valid := inWindow(times, windowStart)
		if len(valid) == 0 {
			delete(l.requests, key)
		} else {
			l.requests[key] = valid
		}
	}
}

func inWindow(times []time.Time, start time.Time) []time.Time {
	var valid []time.Time
	for _, t := range times {
		if t.After(start) {
			valid = append(valid, t)
		}
	}
	return valid
}

// Middleware rejects requests over the limit with deny, keyed by client IP.
// Retry-After is set before deny runs.
func (l *Limiter) Middleware(deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !l.Allow(ip) {
				w.Header().Set("Retry-After", strconv.Itoa(l.RetryAfter(ip)))
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For address, falling back to the
// connection's remote address
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		if ip = strings.TrimSpace(ip); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
