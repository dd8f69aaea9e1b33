package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/ghxstship/search-service/internal/infrastructure/observability"
	"go.opentelemetry.io/otel/attribute"
)

type routeKey struct{}

// routeInfo is filled in by the mux once it has matched a pattern
type routeInfo struct {
	pattern string
}

// RecordRoute stores the matched mux pattern for the metrics middleware
func RecordRoute(r *http.Request) {
	if info, ok := r.Context().Value(routeKey{}).(*routeInfo); ok {
		info.pattern = r.Pattern
	}
}

// ObservabilityMiddleware adds OpenTelemetry tracing and metrics to HTTP requests
func ObservabilityMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := observability.StartSpan(r.Context(), r.Method+" "+r.URL.Path)
			defer span.End()

			observability.SetSpanAttributes(span,
				attribute.String("http.method", r.Method),
				attribute.String("http.user_agent", r.UserAgent()),
			)

			info := &routeInfo{}
			ctx = context.WithValue(ctx, routeKey{}, info)
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(rw, r.WithContext(ctx))
			duration := time.Since(start)

			// label metrics by route pattern
			route := info.pattern
			if route == "" {
				route = "unmatched"
			}
			observability.RecordRequestMetric(ctx, metrics, r.Method, route, rw.statusCode, duration)
			observability.SetSpanAttributes(span,
				attribute.String("http.route", route),
				attribute.Int("http.status_code", rw.statusCode),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}
