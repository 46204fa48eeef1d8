package routes

import (
	"net/http"

	"github.com/zatekoja/eventscan/internal/api/handlers"
	"github.com/zatekoja/eventscan/internal/api/middleware"
	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	searchHandler    *handlers.SearchHandler
	analyticsHandler *handlers.AnalyticsHandler

	metrics *observability.SearchMetrics
}

// NewRouter creates a new router
func NewRouter(
	searchHandler *handlers.SearchHandler,
	analyticsHandler *handlers.AnalyticsHandler,
	metrics *observability.SearchMetrics,
) *Router {
	return &Router{
		mux:              http.NewServeMux(),
		searchHandler:    searchHandler,
		analyticsHandler: analyticsHandler,
		metrics:          metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Search endpoints
	r.mux.HandleFunc("GET /api/search", r.searchHandler.Search)
	r.mux.HandleFunc("POST /api/search/filter", r.searchHandler.SearchByFilter)
	r.mux.HandleFunc("GET /api/events", r.searchHandler.BrowseEvents)

	// Analytics endpoints
	if r.analyticsHandler != nil {
		r.mux.HandleFunc("GET /api/analytics/insights", r.analyticsHandler.GetInsights)
		r.mux.HandleFunc("GET /api/analytics/zero-result-queries", r.analyticsHandler.GetZeroResultQueries)
		r.mux.HandleFunc("GET /api/analytics/popular-queries", r.analyticsHandler.GetPopularQueries)
		r.mux.HandleFunc("GET /api/analytics/clusters", r.analyticsHandler.GetClusters)
		r.mux.HandleFunc("POST /api/admin/analytics/refresh-flags", r.analyticsHandler.RefreshFlags)
	}

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.NoStore(handler)
	handler = middleware.Compression(handler)

	// CORS wraps everything so preflights never reach the handlers
	handler = middleware.CORSMiddleware(handler)

	return handler
}
