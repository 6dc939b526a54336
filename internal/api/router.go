package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/bastion/backend/internal/api/handlers"
	"github.com/wonny/bastion/backend/pkg/logger"
)

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(orderHandler *handlers.OrderHandler, auditHandler *handlers.AuditHandler, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Order lifecycle
	api.HandleFunc("/orders", orderHandler.Stage).Methods("POST")
	api.HandleFunc("/orders", orderHandler.List).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}", orderHandler.Get).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}", orderHandler.Update).Methods("PATCH")
	api.HandleFunc("/orders/{id:[0-9]+}/approve", orderHandler.Approve).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}/reject", orderHandler.Reject).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}/cancel", orderHandler.Cancel).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}/submit", orderHandler.MarkSubmitted).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}/execute", orderHandler.MarkExecuted).Methods("POST")

	// Approval desk
	api.HandleFunc("/approvals/queue", orderHandler.Queue).Methods("GET")
	api.HandleFunc("/approvals/bulk-approve", orderHandler.BulkApprove).Methods("POST")
	api.HandleFunc("/approvals/bulk-reject", orderHandler.BulkReject).Methods("POST")
	api.HandleFunc("/approvals/sweep", orderHandler.Sweep).Methods("POST")

	// Audit log
	api.HandleFunc("/orders/{id:[0-9]+}/audit", auditHandler.ListByOrder).Methods("GET")
	api.HandleFunc("/audit", auditHandler.ListAfter).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "bastion-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
