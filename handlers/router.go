package handlers

import (
	"net/http"

	"pennytrack/config"
	"pennytrack/middleware"

	"github.com/gorilla/mux"
)

// NewRouter mounts the API behind logging, rate limiting, key checks and CORS
func NewRouter(h *Handlers, cfg config.APIConfig) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.RateLimitMiddleware(cfg.RateLimit))

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	apiV1 := r.PathPrefix("/api/" + cfg.Version).Subrouter()
	apiV1.Use(middleware.APIKeyMiddleware(cfg.APIKey))

	apiV1.HandleFunc("/status", h.GetStatus).Methods("GET")
	apiV1.HandleFunc("/classify", h.Classify).Methods("GET")

	// Tracked items
	apiV1.HandleFunc("/items", h.ListItems).Methods("GET")
	apiV1.HandleFunc("/items", h.AddItem).Methods("POST")
	apiV1.HandleFunc("/items/{sku}", h.RemoveItem).Methods("DELETE")
	apiV1.HandleFunc("/items/{sku}/history", h.GetPriceHistory).Methods("GET")
	apiV1.HandleFunc("/items/{sku}/check", h.CheckPriceNowAsync).Methods("POST")

	// Background jobs
	apiV1.HandleFunc("/sync", h.StartSync).Methods("POST")
	apiV1.HandleFunc("/discover", h.StartDiscovery).Methods("POST")
	apiV1.HandleFunc("/tasks/stats", h.GetTaskStats).Methods("GET")
	apiV1.HandleFunc("/tasks/{taskId}", h.GetTaskStatus).Methods("GET")

	return middleware.CORS(cfg).Handler(r)
}
