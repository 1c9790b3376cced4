package router

import (
	"lab-inventory-api/internal/config"
	"lab-inventory-api/internal/handler"
	"lab-inventory-api/internal/middleware"

	"github.com/gorilla/mux"
)

// NewRouter creates a new router and sets up the agent sync routes with
// security middleware. Agent authentication happens in an upstream
// layer; this router only carries transport-level protections.
func NewRouter(h handler.AgentHandlerInterface, cfg *config.Config) *mux.Router {
	r := mux.NewRouter()

	securityMW := middleware.NewSecurityMiddleware(&cfg.Security)

	// Apply global middleware in order
	r.Use(securityMW.SecurityHeaders)
	r.Use(securityMW.TrustedProxy)
	r.Use(securityMW.RateLimit)
	r.Use(securityMW.RequestTimeout)

	agent := r.PathPrefix("/api/v1/agent").Subrouter()

	// Agent reconciliation endpoints
	agent.HandleFunc("/sync-equipamento", h.SyncEquipmentHandler).Methods("POST")
	agent.HandleFunc("/sync-softwares", h.SyncSoftwaresHandler).Methods("POST")
	agent.HandleFunc("/sync-equipamento-softwares", h.SyncAssociationsHandler).Methods("POST")

	// Health check
	agent.HandleFunc("/health", h.HealthHandler).Methods("GET")

	return r
}
