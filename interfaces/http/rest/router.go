package rest

import (
	"context"
	"net/http"

	"grocerylist/interfaces/http/rest/handlers"
	"grocerylist/interfaces/http/rest/middleware"
	pkgerrors "grocerylist/pkg/errors"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Options toggles optional router features
type Options struct {
	EnableCORS     bool
	AllowedOrigins []string
	// MetricsHandler serves /metrics when set
	MetricsHandler http.Handler
	// HTTPMetrics records every request when set
	HTTPMetrics middleware.HTTPMetrics
	// TracingService enables server spans under this name when set
	TracingService string
	// Ready reports whether the service can take traffic; nil means always
	Ready func(ctx context.Context) error
}

// Router creates and configures the HTTP router
type Router struct {
	grocery *handlers.GroceryHandler
	errors  *pkgerrors.ErrorHandler
	opts    Options
	logger  *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	grocery *handlers.GroceryHandler,
	errorHandler *pkgerrors.ErrorHandler,
	opts Options,
	logger *zap.Logger,
) *Router {
	return &Router{
		grocery: grocery,
		errors:  errorHandler,
		opts:    opts,
		logger:  logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logger(rt.logger))
	router.Use(rt.errors.Middleware)
	if rt.opts.HTTPMetrics != nil {
		router.Use(middleware.Metrics(rt.opts.HTTPMetrics))
	}
	if rt.opts.TracingService != "" {
		router.Use(middleware.Tracing(rt.opts.TracingService))
	}

	if rt.opts.EnableCORS {
		origins := rt.opts.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
		}
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.opts.MetricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", rt.opts.MetricsHandler)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Get("/", rt.grocery.ListItems)
			r.Post("/", rt.grocery.CreateItem)
			r.Post("/validate", rt.grocery.ValidateItem)
			r.Patch("/{id}", rt.grocery.UpdateItem)
			r.Delete("/{id}", rt.grocery.DeleteItem)
			r.Post("/{id}/toggle", rt.grocery.ToggleItem)
		})
		r.Post("/session/restart", rt.grocery.RestartSession)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rt.errors.HandleStatus(w, r, http.StatusNotFound, "Route not found")
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	if rt.opts.Ready != nil {
		if err := rt.opts.Ready(req.Context()); err != nil {
			rt.errors.HandleStatus(w, req, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
