package routes

import (
	"net/http"

	"github.com/ghxstship/search-service/internal/api/handlers"
	"github.com/ghxstship/search-service/internal/api/middleware"
	"github.com/ghxstship/search-service/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	searchHandler *handlers.SearchHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	searchHandler *handlers.SearchHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:            http.NewServeMux(),
		searchHandler:  searchHandler,
		allowedOrigins: allowedOrigins,
		metrics:        metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.handle("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Search endpoints, one dispatcher per table
	r.handle("POST /api/search/{table}", r.searchHandler.Search)
	r.handle("POST /api/search/{table}/clicks", r.searchHandler.TrackClick)
	r.handle("POST /api/search/{table}/refinements", r.searchHandler.TrackRefinement)
	r.handle("POST /api/search/{table}/abandonments", r.searchHandler.MarkAbandoned)
	r.handle("GET /api/search/{table}/metrics", r.searchHandler.GetMetrics)
	r.handle("GET /api/search/{table}/suggestions", r.searchHandler.GetSuggestions)

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.ResponseOptimization(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}

func (r *Router) handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, func(w http.ResponseWriter, req *http.Request) {
		middleware.RecordRoute(req)
		h(w, req)
	})
}
