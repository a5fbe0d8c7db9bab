// Package shield holds the HTTP middleware shared by every audioscribe
// route: security headers, request tracing, body limits, rate limiting and
// HEAD handling.
//
//	r := chi.NewRouter()
//	stack, rl := shield.APIStack(db, 64<<20)
//	for _, mw := range stack {
//	    r.Use(mw)
//	}
//	rl.StartReloader(ctx.Done())
package shield

import (
	"database/sql"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// APIStack returns the standard middleware stack, outermost first:
// HeadToGet, SecurityHeaders, MaxBody, TraceID, RateLimiter.
// The rate limiter reads its rules from db, which must hold Schema.
func APIStack(db *sql.DB, maxBody int64) ([]func(http.Handler) http.Handler, *RateLimiter) {
	rl := NewRateLimiter(db, "/health")
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(maxBody),
		TraceID,
		rl.Middleware,
	}, rl
}
