package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter builds the HTTP route table.
func NewRouter(h *Handlers) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// Auth
	router.HandleFunc("/register", h.Register).Methods("POST")
	router.HandleFunc("/token", h.Token).Methods("POST")
	router.HandleFunc("/users/me", h.RequireAuth(h.CurrentUser)).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	// Alerts endpoints
	api.HandleFunc("/alerts", h.RequireAuth(h.GetAlerts)).Methods("GET")
	api.HandleFunc("/alerts", h.RequireAuth(h.CreateAlert)).Methods("POST")
	api.HandleFunc("/stream/alerts", h.StreamAlerts).Methods("GET")

	// File events endpoints
	api.HandleFunc("/file-events", h.RequireAuth(h.GetFileEvents)).Methods("GET")
	api.HandleFunc("/file-events", h.RequireAuth(h.CreateFileEvent)).Methods("POST")
	api.HandleFunc("/stream/events", h.StreamFileEvents).Methods("GET")

	// Metrics endpoint
	api.HandleFunc("/metrics", h.RequireAuth(h.GetMetrics)).Methods("GET")

	// Monitoring control surface
	api.HandleFunc("/monitoring/start", h.RequireAuth(h.StartMonitoring)).Methods("POST")
	api.HandleFunc("/monitoring/stop", h.RequireAuth(h.StopMonitoring)).Methods("POST")
	api.HandleFunc("/monitoring/status", h.RequireAuth(h.MonitoringStatus)).Methods("GET")

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowedOrigins := []string{
			"http://localhost:3000",
			"http://localhost:3001",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:3001",
		}

		allowOrigin := "*"
		if origin != "" {
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					allowOrigin = origin
					break
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if allowOrigin != "*" {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
