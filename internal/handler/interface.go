package handler

import (
	"net/http"
)

// AgentHandlerInterface defines the contract for the agent sync endpoints.
// This interface enables easy testing, mocking, and dependency injection.
type AgentHandlerInterface interface {
	SyncEquipmentHandler(w http.ResponseWriter, r *http.Request)
	SyncSoftwaresHandler(w http.ResponseWriter, r *http.Request)
	SyncAssociationsHandler(w http.ResponseWriter, r *http.Request)

	// Health and monitoring
	HealthHandler(w http.ResponseWriter, r *http.Request)
}

// Ensure AgentHandler implements AgentHandlerInterface at compile time
var _ AgentHandlerInterface = (*AgentHandler)(nil)
