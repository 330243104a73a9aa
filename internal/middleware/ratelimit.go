package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	apperrors "leadflow/internal/errors"
	"leadflow/internal/httputil"
	"leadflow/internal/metrics"
	"leadflow/internal/service"
)

// RateLimiter is a per-client sliding window limiter.
type RateLimiter struct {
	mu        sync.RWMutex
	limit     int
	window    time.Duration
	requests  map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows limit requests per client within window. A limit
// below one denies everything.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 0 {
		limit = 0
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow records a request from client and reports whether it is within the
// limit.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	if now.Sub(rl.lastSweep) >= rl.window {
		rl.sweep(cutoff)
		rl.lastSweep = now
	}

	recent := pruneBefore(rl.requests[client], cutoff)
	if len(recent) >= rl.limit {
		if len(recent) == 0 {
			delete(rl.requests, client)
		} else {
			rl.requests[client] = recent
		}
		return false
	}
	rl.requests[client] = append(recent, now)
	return true
}

// sweep drops clients with no request inside the window.
func (rl *RateLimiter) sweep(cutoff time.Time) {
	for client, times := range rl.requests {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(rl.requests, client)
		}
	}
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// Middleware rejects clients over the limit with 429 and a Retry-After
// header.
func (rl *RateLimiter) Middleware(logger logrus.FieldLogger) mux.MiddlewareFunc {
	retryAfter := strconv.Itoa(int(rl.window.Round(time.Second).Seconds()))
	if retryAfter == "0" {
		retryAfter = "1"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := httputil.GetClientIP(r)
			if rl.Allow(client) {
				next.ServeHTTP(w, r)
				return
			}

			metrics.IncrementCounter("http_rate_limited_total", map[string]string{
				"route": routeTemplate(r),
			}, "Requests rejected by the rate limiter")
			logger.WithField(service.LogFieldRemoteIP, client).Warn("Rate limit exceeded")

			w.Header().Set("Retry-After", retryAfter)
			err := apperrors.New(apperrors.ErrCodeRateLimited, "rate limit exceeded").
				WithUserMessage("Too many requests")
			httputil.WriteError(w, r, logger, err)
		})
	}
}
