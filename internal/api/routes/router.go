package routes

import (
	"net/http"

	"github.com/shivam13669/CRMManagementt-sub003/internal/api/handlers"
	"github.com/shivam13669/CRMManagementt-sub003/internal/api/middleware"
	"github.com/shivam13669/CRMManagementt-sub003/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	dispatchHandler *handlers.DispatchHandler
	sseHandler      *handlers.SSEHandler
	healthHandler   *handlers.HealthHandler

	auth           middleware.AuthOptions
	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	dispatchHandler *handlers.DispatchHandler,
	sseHandler *handlers.SSEHandler,
	healthHandler *handlers.HealthHandler,
	auth middleware.AuthOptions,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:             http.NewServeMux(),
		dispatchHandler: dispatchHandler,
		sseHandler:      sseHandler,
		healthHandler:   healthHandler,
		auth:            auth,
		allowedOrigins:  allowedOrigins,
		metrics:         metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.healthHandler.Health)

	// Everything under /api/dispatch acts for the token's operator.
	api := http.NewServeMux()

	api.HandleFunc("GET /api/dispatch/view", r.dispatchHandler.GetView)
	api.HandleFunc("POST /api/dispatch/refresh", r.dispatchHandler.Refresh)
	api.HandleFunc("PUT /api/dispatch/criteria", r.dispatchHandler.SetCriteria)
	api.HandleFunc("PUT /api/dispatch/page", r.dispatchHandler.SetPage)

	api.HandleFunc("POST /api/dispatch/requests/{id}/select", r.dispatchHandler.Select)
	api.HandleFunc("DELETE /api/dispatch/selection", r.dispatchHandler.ClearSelection)
	api.HandleFunc("GET /api/dispatch/requests/{id}/address", r.dispatchHandler.GetAddress)
	api.HandleFunc("POST /api/dispatch/requests/{id}/address/retry", r.dispatchHandler.RetryAddress)
	api.HandleFunc("GET /api/dispatch/requests/{id}/audit", r.dispatchHandler.GetAudit)

	api.HandleFunc("POST /api/dispatch/forward", r.dispatchHandler.Forward)
	api.HandleFunc("GET /api/dispatch/hospitals", r.dispatchHandler.ListHospitals)

	if r.sseHandler != nil {
		api.HandleFunc("GET /api/dispatch/stream", r.sseHandler.StreamView)
	}

	r.mux.Handle("/api/dispatch/", middleware.AuthMiddleware(r.auth)(api))

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)

	// CORS wraps everything so preflight requests never reach auth
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
