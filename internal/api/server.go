package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/anveshgarg/courtscout/internal/config"
	"github.com/anveshgarg/courtscout/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes.
func (h *Handler) SetupRoutes(limiter *ratelimit.Limiter, cfg config.RateLimitConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.Use(h.metricsMiddleware)

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()

	// Automation endpoints are rate limited per client.
	limited := api.PathPrefix("").Subrouter()
	if cfg.Enabled {
		limited.Use(RateLimitMiddleware(limiter, cfg.RequestsPerHour))
	}

	limited.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	limited.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	limited.HandleFunc("/sessions/{id}", h.DeleteSession).Methods("DELETE")
	limited.HandleFunc("/sessions/{id}/form", h.GetForm).Methods("GET")
	limited.HandleFunc("/sessions/{id}/case-types", h.CascadeCaseTypes).Methods("POST")
	limited.HandleFunc("/sessions/{id}/reload", h.ReloadForm).Methods("POST")
	limited.HandleFunc("/sessions/{id}/captcha/solve", h.SolveCaptcha).Methods("POST")
	limited.HandleFunc("/sessions/{id}/search", h.Search).Methods("POST")
	limited.HandleFunc("/sessions/{id}/cases/{cno}", h.ViewCaseDetail).Methods("POST")
	limited.HandleFunc("/sessions/{id}/cases/{cno}/pdf", h.CaseDetailPDF).Methods("POST")

	// Captcha image polling and read-only endpoints are not rate limited.
	api.HandleFunc("/sessions/{id}/captcha", h.GetCaptcha).Methods("GET")
	api.HandleFunc("/sessions/{id}/results", h.ListResults).Methods("GET")
	api.HandleFunc("/sessions/{id}/results/pdf", h.ResultsPDF).Methods("GET")
	api.HandleFunc("/sessions/{id}/watch", h.Watch).Methods("GET")
	api.HandleFunc("/history", h.GetHistory).Methods("GET")
	api.HandleFunc("/history/{sessionId}", h.GetHistoryEntry).Methods("GET")
	api.HandleFunc("/history/{sessionId}/pdf", h.HistoryPDF).Methods("GET")
	api.HandleFunc("/artifacts/{filename}", h.GetArtifact).Methods("GET")

	r.Handle("/metrics", h.metrics.Handler()).Methods("GET")

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
