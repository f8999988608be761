package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vocdoni/evote-tally/log"
)

// DisabledLogging turns the request logger off.
var DisabledLogging = false

// LoggingConfig selects which requests the request logger reports.
type LoggingConfig struct {
	// ExcludedPrefixes are polled endpoints that would flood the debug log.
	ExcludedPrefixes []string
}

// DefaultLoggingConfig excludes LogExcludedPrefixes.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{ExcludedPrefixes: LogExcludedPrefixes}
}

func (lc LoggingConfig) excluded(path string) bool {
	for _, prefix := range lc.ExcludedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// requestLogger logs every request once it is served. Server errors are
// logged as warnings at any level, everything else only in debug mode.
func requestLogger(lc LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if DisabledLogging || lc.excluded(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			fields := []any{
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"took", time.Since(start).String(),
			}
			if status >= http.StatusInternalServerError {
				log.Warnw("api request failed", fields...)
				return
			}
			if log.Level() == log.LogLevelDebug {
				log.Debugw("api request", fields...)
			}
		})
	}
}
