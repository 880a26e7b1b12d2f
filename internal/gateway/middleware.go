// HTTP middleware for logging, panic recovery and rate limiting.
//
// DESIGN: Middleware chain (applied in order):
//  1. panicRecovery:     Catch panics, return 500, log stack trace
//  2. rateLimit:         Per-IP token bucket rate limiting (off when rate_limit is 0)
//  3. loggingMiddleware: Request ID, request/response logging, metrics
package gateway

import (
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/compresr/lingua-gateway/internal/monitoring"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code before writing it.
func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush implements http.Flusher to support streaming responses.
// This delegates to the underlying ResponseWriter if it supports flushing.
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	limiters   map[string]*ipLimiter
	mu         sync.Mutex
	limit      rate.Limit
	burst      int
	maxBuckets int
	stop       chan struct{}
	stopOnce   sync.Once
}

// ipLimiter holds rate limiting state for a single IP.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter creates a limiter allowing perSecond requests per IP with
// the given burst (at least 1).
func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if burst < 1 {
		burst = max(1, int(perSecond))
	}
	rl := &rateLimiter{
		limiters:   make(map[string]*ipLimiter),
		limit:      rate.Limit(perSecond),
		burst:      burst,
		maxBuckets: MaxRateLimitBuckets,
		stop:       make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// allow checks if the given IP is allowed to make a request.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	l, exists := rl.limiters[ip]
	if !exists {
		// Enforce max buckets to prevent memory exhaustion
		if len(rl.limiters) >= rl.maxBuckets {
			rl.evictOldest()
		}
		l = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

// evictOldest removes the least recently seen bucket (called with lock held).
func (rl *rateLimiter) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, l := range rl.limiters {
		if first || l.lastSeen.Before(oldestTime) {
			oldestKey = k
			oldestTime = l.lastSeen
			first = false
		}
	}
	if oldestKey != "" {
		delete(rl.limiters, oldestKey)
	}
}

// cleanup periodically removes stale buckets.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-10 * time.Minute)
			for ip, l := range rl.limiters {
				if l.lastSeen.Before(cutoff) {
					delete(rl.limiters, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// close stops the cleanup goroutine.
func (rl *rateLimiter) close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// loggingMiddleware logs request details and duration using the structured logging system.
func (g *Gateway) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, requestID)

		// Add request ID to context for downstream logging
		ctx := monitoring.WithRequestIDContext(r.Context(), requestID)
		r = r.WithContext(ctx)

		bodySize := int(r.ContentLength)
		if bodySize < 0 {
			bodySize = 0
		}
		g.requestLogger.LogIncoming(monitoring.NewRequestInfo(r, requestID, bodySize))

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		latency := time.Since(start)

		g.requestLogger.LogResponse(&monitoring.ResponseInfo{
			RequestID:  requestID,
			StatusCode: wrapped.status,
			Latency:    latency,
		})

		g.metrics.RecordRequest(metricsPath(r.URL.Path), wrapped.status, latency)
		g.alerts.FlagHighLatency(requestID, latency, r.URL.Path)

		log.Info().
			Str("id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", latency).
			Msg("request")
	})
}

// metricsPath collapses passthrough paths so label cardinality stays bounded.
func metricsPath(path string) string {
	switch path {
	case "/v1/messages", "/health", "/stats", "/metrics":
		return path
	}
	return "other"
}

// panicRecovery middleware recovers from panics and returns a 500 error.
func (g *Gateway) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				stack := string(debug.Stack())
				requestID := monitoring.RequestIDFromContext(r.Context())

				g.alerts.FlagPanic(requestID, err, stack)

				g.writeError(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimit middleware enforces per-IP rate limiting.
func (g *Gateway) rateLimit(next http.Handler) http.Handler {
	if g.rateLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := g.getClientIP(r)
		if !g.rateLimiter.allow(ip) {
			log.Warn().Str("ip", ip).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			g.writeError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP address from the request.
// Trusts X-Forwarded-For and X-Real-IP headers only from localhost.
func (g *Gateway) getClientIP(r *http.Request) string {
	if remoteIP, _, _ := net.SplitHostPort(r.RemoteAddr); remoteIP == "127.0.0.1" || remoteIP == "::1" {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// isLoopback reports whether remoteAddr is a loopback address.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
