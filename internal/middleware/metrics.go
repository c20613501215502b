// Package middleware provides HTTP middleware for metrics collection.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eramir/facecheck/internal/metrics"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := normalizeEndpoint(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(r.Method, endpoint, status, duration)
	})
}

func normalizeEndpoint(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/task/items/"):
		return "/api/task/items/:id/vote"
	case strings.HasPrefix(path, "/api/task/") && !strings.Contains(path[10:], "/"):
		return "/api/task/:id"
	default:
		return path
	}
}
