package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/onnwee/ethosprompt/backend/internal/apierr"
)

const (
	ipLimiterIdle   = 3 * time.Minute
	cleanupInterval = time.Minute
)

// RateLimiter enforces a global and a per-client-IP token bucket.
type RateLimiter struct {
	global  *rate.Limiter
	ipRate  rate.Limit
	ipBurst int

	mu    sync.Mutex
	perIP map[string]*ipLimiter

	stop     chan struct{}
	stopOnce sync.Once
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter allowing globalRate requests per second
// overall and ipRate per client IP, with the given bursts.
func NewRateLimiter(globalRate float64, globalBurst int, ipRate float64, ipBurst int) *RateLimiter {
	rl := &RateLimiter{
		global:  rate.NewLimiter(rate.Limit(globalRate), globalBurst),
		ipRate:  rate.Limit(ipRate),
		ipBurst: ipBurst,
		perIP:   make(map[string]*ipLimiter),
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.perIP[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rl.ipRate, rl.ipBurst)}
		rl.perIP[ip] = l
	}
	l.lastSeen = time.Now()
	return l.limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.removeIdle(now)
		}
	}
}

// removeIdle drops per-IP limiters not used since ipLimiterIdle before now.
func (rl *RateLimiter) removeIdle(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for ip, l := range rl.perIP {
		if now.Sub(l.lastSeen) > ipLimiterIdle {
			delete(rl.perIP, ip)
			removed++
		}
	}
	return removed
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Limit returns a middleware handler that enforces rate limits.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.global.Allow() {
			w.Header().Set("Retry-After", "1")
			apierr.WriteErrorWithContext(w, r, apierr.RateLimitGlobal())
			return
		}
		if !rl.getLimiter(clientIP(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			apierr.WriteErrorWithContext(w, r, apierr.RateLimitIP())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
