package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"resumeopt/internal/errors"
)

const limiterEviction = 10 * time.Minute

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
	done     chan struct{}
	once     sync.Once
	logger   *errors.Logger
}

// NewRateLimiter allows requestsPerMin per key with the given burst.
func NewRateLimiter(requestsPerMin, burst int, logger *errors.Logger) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	m := &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rate:     rate.Limit(float64(requestsPerMin) / 60.0),
		burst:    burst,
		done:     make(chan struct{}),
		logger:   logger,
	}
	go m.cleanupRoutine(limiterEviction)
	return m
}

func (m *RateLimiter) limiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.limiters[key]
	if !ok {
		l = rate.NewLimiter(m.rate, m.burst)
		m.limiters[key] = l
	}
	m.lastSeen[key] = time.Now()
	return l
}

// Allow reports whether key may make a request now.
func (m *RateLimiter) Allow(key string) bool {
	return m.limiter(key).Allow()
}

func (m *RateLimiter) Stats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"active_limiters": len(m.limiters),
		"rate_per_minute": float64(m.rate) * 60.0,
		"burst_capacity":  m.burst,
	}
}

func (m *RateLimiter) cleanupRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.evict(time.Now(), interval)
		case <-m.done:
			return
		}
	}
}

// evict forgets keys idle for longer than age.
func (m *RateLimiter) evict(now time.Time, age time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, seen := range m.lastSeen {
		if now.Sub(seen) > age {
			delete(m.limiters, key)
			delete(m.lastSeen, key)
		}
	}
	m.logger.Debug("Rate limiter cleanup completed", "remaining_limiters", len(m.limiters))
}

// Close stops the cleanup goroutine.
func (m *RateLimiter) Close() {
	m.once.Do(func() { close(m.done) })
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	rl := s.cfg.Server.RateLimit

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, kind := rateLimitKey(r, rl.ByAPIKey, rl.ByIP)
		if key == "" || s.limiter.Allow(key) {
			next.ServeHTTP(w, r)
			return
		}

		s.logger.Info("Rate limit exceeded",
			"limiter", kind,
			"endpoint", r.URL.Path,
			"client_ip", getClientIP(r))
		if s.deps.Observability != nil {
			s.deps.Observability.RecordRateLimitHit(r.Context(), kind)
		}
		w.Header().Set("Retry-After", "60")
		writeErrorResponse(w, "Rate limit exceeded", "Too many requests", http.StatusTooManyRequests)
	})
}

// rateLimitKey picks the API key when enabled and present, then the client IP.
func rateLimitKey(r *http.Request, byAPIKey, byIP bool) (key, kind string) {
	if byAPIKey {
		if apiKey := requestAPIKey(r); apiKey != "" {
			return "api:" + apiKey, "api_key"
		}
	}
	if byIP {
		return "ip:" + getClientIP(r), "ip"
	}
	return "", ""
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for ip := range strings.SplitSeq(xff, ",") {
			ip = strings.TrimSpace(ip)
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	if xri := r.Header.Get("X-Real-IP"); net.ParseIP(xri) != nil {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
