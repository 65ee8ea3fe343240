package routes

import (
	"net/http"

	"github.com/junohealth/marketexplorer/internal/api/handlers"
	"github.com/junohealth/marketexplorer/internal/api/middleware"
	"github.com/junohealth/marketexplorer/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	explorerHandler *handlers.ExplorerHandler
	sseHandler      *handlers.SSEHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	explorerHandler *handlers.ExplorerHandler,
	sseHandler *handlers.SSEHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:             http.NewServeMux(),
		explorerHandler: explorerHandler,
		sseHandler:      sseHandler,
		allowedOrigins:  allowedOrigins,
		metrics:         metrics,
	}
}

// handle registers a route. Tracing wraps each route so spans see the matched pattern.
func (r *Router) handle(pattern string, h http.HandlerFunc) {
	r.mux.Handle(pattern, middleware.ObservabilityMiddleware(r.metrics)(h))
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Health check endpoint
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Session lifecycle
	r.handle("POST /api/sessions", r.explorerHandler.CreateSession)
	r.handle("GET /api/sessions/{id}", r.explorerHandler.GetSession)
	r.handle("DELETE /api/sessions/{id}", r.explorerHandler.DeleteSession)

	// Session commands
	r.handle("PUT /api/sessions/{id}/filters", r.explorerHandler.SetFilters)
	r.handle("PUT /api/sessions/{id}/view-mode", r.explorerHandler.SetViewMode)
	r.handle("POST /api/sessions/{id}/selection", r.explorerHandler.SelectEntity)
	r.handle("POST /api/sessions/{id}/quick-view", r.explorerHandler.EnterQuickView)
	r.handle("DELETE /api/sessions/{id}/quick-view", r.explorerHandler.ExitQuickView)
	r.handle("PUT /api/sessions/{id}/bounds", r.explorerHandler.SetMapBounds)
	r.handle("PUT /api/sessions/{id}/page", r.explorerHandler.SetPage)
	r.handle("POST /api/sessions/{id}/refresh", r.explorerHandler.Refresh)

	// Session event stream
	r.handle("GET /api/sessions/{id}/events", r.sseHandler.StreamSession)

	r.handle("GET /api/filter-options", r.explorerHandler.GetFilterOptions)

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.ResponseOptimization(handler)
	handler = middleware.LoggingMiddleware(handler)

	// CORS wraps everything so preflight never reaches the mux
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
