package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fluxhive/fluxhive/internal/api/handlers"
	"github.com/fluxhive/fluxhive/internal/api/middleware"
)

// Router wraps mux.Router to add more functionality
type Router struct {
	*mux.Router
	middleware []mux.MiddlewareFunc
	endpoint   string
}

// RouterDeps carries everything route registration needs.
type RouterDeps struct {
	TaskHandler    *handlers.TaskHandler
	WebhookHandler *handlers.WebhookHandler
	HealthHandler  *handlers.HealthHandler
	Redis          *redis.Client
	JWTSecret      string
}

// NewRouter creates and configures a new router with all dependencies
func NewRouter(deps RouterDeps, endpoint string) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		middleware: []mux.MiddlewareFunc{
			middleware.Logging,
			middleware.Metrics,
		},
		endpoint: endpoint,
	}

	r.setup()
	r.registerRoutes(deps)

	return r
}

// setup configures the base router with middleware and common settings
func (r *Router) setup() {
	for _, m := range r.middleware {
		r.Use(m)
	}
}

// registerRoutes registers all application routes
func (r *Router) registerRoutes(deps RouterDeps) {
	// Unauthenticated surface: probes, metrics, and the provider callback.
	r.HandleFunc("/health", deps.HealthHandler.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc(r.endpoint+"/webhooks/workflow", deps.WebhookHandler.HandleWorkflowWebhook).Methods("POST")

	// Everything else requires a bearer token.
	api := r.PathPrefix(r.endpoint).Subrouter()
	api.Use(middleware.Auth(deps.JWTSecret))

	generate := api.PathPrefix("/generate").Subrouter()
	generate.Use(middleware.RateLimit(deps.Redis, "generate", 10, 10*time.Second))
	generate.HandleFunc("", deps.TaskHandler.Generate).Methods("POST")
	generate.HandleFunc("/batch", deps.TaskHandler.GenerateBatch).Methods("POST")

	tasks := api.PathPrefix("/tasks").Subrouter()
	tasks.HandleFunc("", deps.TaskHandler.ListTasks).Methods("GET")
	tasks.Handle("/status",
		middleware.RateLimit(deps.Redis, "poll", 15, 5*time.Second)(
			http.HandlerFunc(deps.TaskHandler.PollStatus))).Methods("POST")
	tasks.HandleFunc("/{id}", deps.TaskHandler.GetTask).Methods("GET")
	tasks.HandleFunc("/{id}/ws", deps.TaskHandler.StreamTask).Methods("GET")
}

// AddMiddleware adds a new middleware to the router
func (r *Router) AddMiddleware(middleware mux.MiddlewareFunc) {
	r.Use(middleware)
}
