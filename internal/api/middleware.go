package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalist/portfolio-service/internal/pricecache"
)

// RateLimiter enforces a per-client request budget over a rolling window.
// The counters live in the injected TTL store, not in process state, so
// every instance behind a load balancer shares one budget per client.
type RateLimiter struct {
	store    pricecache.Store
	requests int
	window   time.Duration
	logger   zerolog.Logger
}

// NewRateLimiter creates a rate limiter backed by the given TTL store
func NewRateLimiter(store pricecache.Store, requests int, window time.Duration, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		store:    store,
		requests: requests,
		window:   window,
		logger:   logger.With().Str("component", "rate_limiter").Logger(),
	}
}

// Middleware wraps a handler with the rate limit check
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ratelimit:" + clientIP(r)

		count, err := rl.store.Incr(r.Context(), key, rl.window)
		if err != nil {
			// The limiter failing must not take the API down with it.
			rl.logger.Error().Err(err).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		if count > int64(rl.requests) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the caller's address, honoring X-Forwarded-For when the
// service sits behind a proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
