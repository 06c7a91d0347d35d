package router

import (
	"net/http"

	"github.com/BerylCAtieno/audit-auto-api/internal/handlers"
	"github.com/BerylCAtieno/audit-auto-api/internal/middleware"
	"github.com/BerylCAtieno/audit-auto-api/internal/services"
	"github.com/BerylCAtieno/audit-auto-api/internal/utils"

	"github.com/gorilla/mux"
)

func NewRouter(auditService services.AuditService, logger *utils.Logger, maxFileSize int64) http.Handler {
	r := mux.NewRouter()

	// Middlewares
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))

	auditHandler := handlers.NewAuditHandler(auditService, logger, maxFileSize)

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"Audit Auto AI Backend is Running"}`))
	}).Methods(http.MethodGet)

	// Paths used by existing clients
	r.HandleFunc("/audit-file/", auditHandler.AuditFile).Methods(http.MethodPost)
	r.HandleFunc("/ask/", auditHandler.Ask).Methods(http.MethodGet, http.MethodPost)

	// Routes
	api := r.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	api.HandleFunc("/audit-file", auditHandler.AuditFile).Methods(http.MethodPost)
	api.HandleFunc("/ask", auditHandler.Ask).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/documents", auditHandler.ListDocuments).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", auditHandler.GetDocument).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", auditHandler.DeleteDocument).Methods(http.MethodDelete)
	api.HandleFunc("/documents/{id}/file", auditHandler.DownloadDocument).Methods(http.MethodGet)

	// CORS wraps the router so preflight requests are answered even though
	// no route accepts OPTIONS.
	return middleware.CORS()(r)
}
