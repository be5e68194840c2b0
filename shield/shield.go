// Package shield provides the HTTP middleware stack for the read-only
// data API: security headers, per-IP rate limiting, body limits, request
// tracing, and HEAD method handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	rl := shield.NewRateLimiter(60, time.Minute, "/healthz")
//	for _, mw := range shield.DefaultStack(rl) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type contextKey string

const (
	// TraceIDKey is the context key for the per-request trace ID.
	TraceIDKey contextKey = "shield_trace_id"

	// LoggerKey is the context key for the per-request structured logger.
	LoggerKey contextKey = "shield_logger"
)

// GetTraceID retrieves the trace ID from the request context.
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// DefaultStack returns the standard middleware stack for the data API.
// Ordered: HeadToGet → SecurityHeaders → MaxBody → TraceID → RateLimiter.
// rl may be nil to run without rate limiting (tests, internal deployments).
func DefaultStack(rl *RateLimiter) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(1 << 20),
		TraceID,
	}
	if rl != nil {
		stack = append(stack, rl.Middleware)
	}
	return stack
}

// DefaultRateLimiter returns a limiter tuned for a public read-only API:
// 120 requests per minute per client, health checks excluded.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(120, time.Minute, "/healthz")
}

// HeadToGet rewrites HEAD to GET before routing. The API registers
// every endpoint with r.Get(), so monitoring probes that HEAD a
// resource would otherwise see 405; net/http strips the response body
// for HEAD on its own.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
