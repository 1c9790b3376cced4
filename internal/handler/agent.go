package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"lab-inventory-api/internal/service"

	"github.com/google/uuid"
)

// Constants for request timeouts
const (
	DefaultTimeout      = 10 * time.Second
	DefaultBatchTimeout = 60 * time.Second
)

// ErrorResponse structure for consistent JSON error responses
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// syncEquipmentRequest is the sync-equipamento envelope. Field names
// follow the agent wire format.
type syncEquipmentRequest struct {
	Hostname     string   `json:"hostname"`
	SerialNumber string   `json:"numero_serie"`
	Manufacturer string   `json:"fabricante"`
	Model        string   `json:"modelo"`
	Processor    string   `json:"processador"`
	MemoryRAM    string   `json:"memoria_ram"`
	Disk         string   `json:"disco"`
	LocalIP      string   `json:"ip_local"`
	MACAddress   string   `json:"mac_address"`
	Gateway      string   `json:"gateway"`
	DNSServers   []string `json:"dns_servers"`
	LabID        string   `json:"laboratorio_id"`
	AgentVersion string   `json:"agent_version"`
	DataHash     string   `json:"dados_hash"`
}

type syncEquipmentResponse struct {
	EquipmentID string `json:"equipamento_id"`
	Action      string `json:"action"`
}

type syncSoftwareItem struct {
	Name         string `json:"nome"`
	Version      string `json:"versao"`
	Manufacturer string `json:"fabricante"`
	InstallDate  string `json:"data_instalacao"`
	LicenseKey   string `json:"chave_licenca"`
}

type syncSoftwaresRequest struct {
	Softwares []syncSoftwareItem `json:"softwares"`
}

type syncSoftwaresResponse struct {
	SoftwareIDs []string                 `json:"software_ids"`
	Total       int                      `json:"total"`
	ErrorsCount int                      `json:"errors_count"`
	Errors      []service.BatchItemError `json:"errors"`
}

type syncAssociationsRequest struct {
	EquipmentID string   `json:"equipamento_id"`
	SoftwareIDs []string `json:"software_ids"`
}

type syncAssociationsResponse struct {
	Message        string `json:"message"`
	TotalSoftwares int    `json:"total_softwares"`
}

// AgentHandler handles the HTTP requests of the agent sync endpoints.
// Authentication happens upstream; requests arriving here are trusted.
type AgentHandler struct {
	Sync   service.Syncer
	Logger *log.Logger

	// BatchTimeout bounds one whole sync-softwares request.
	BatchTimeout time.Duration

	ErrorHandler *ErrorHandler
}

// NewAgentHandler creates a new AgentHandler with dependencies. A zero
// batchTimeout falls back to DefaultBatchTimeout.
func NewAgentHandler(sync service.Syncer, logger *log.Logger, batchTimeout time.Duration) *AgentHandler {
	if logger == nil {
		logger = log.Default()
	}
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeout
	}

	return &AgentHandler{
		Sync:         sync,
		Logger:       logger,
		BatchTimeout: batchTimeout,
		ErrorHandler: NewErrorHandler(logger),
	}
}

// SyncEquipmentHandler handles POST sync-equipamento.
func (h *AgentHandler) SyncEquipmentHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), DefaultTimeout)
	defer cancel()

	var req syncEquipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ErrorHandler.HandleJSONDecodeError(w, err)
		return
	}

	if validationErrors := validateEquipmentEnvelope(&req); len(validationErrors) > 0 {
		h.ErrorHandler.HandleValidationErrors(w, validationErrors)
		return
	}

	labID, ok := h.ErrorHandler.ParseAndValidateUUID(w, "laboratorio_id", req.LabID)
	if !ok {
		return
	}

	report := service.EquipmentReport{
		Hostname:     req.Hostname,
		SerialNumber: req.SerialNumber,
		Manufacturer: req.Manufacturer,
		Model:        req.Model,
		Processor:    req.Processor,
		MemoryRAM:    req.MemoryRAM,
		Disk:         req.Disk,
		LocalIP:      req.LocalIP,
		MACAddress:   req.MACAddress,
		Gateway:      req.Gateway,
		DNSServers:   req.DNSServers,
		LabID:        labID,
		AgentVersion: req.AgentVersion,
		DataHash:     req.DataHash,
	}

	id, action, err := h.Sync.ReconcileEquipment(ctx, report)
	if err != nil {
		h.ErrorHandler.HandleServiceError(w, err, "sync equipment")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, syncEquipmentResponse{
		EquipmentID: id.String(),
		Action:      string(action),
	})
}

// SyncSoftwaresHandler handles POST sync-softwares.
func (h *AgentHandler) SyncSoftwaresHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.BatchTimeout)
	defer cancel()

	var req syncSoftwaresRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ErrorHandler.HandleJSONDecodeError(w, err)
		return
	}

	if len(req.Softwares) == 0 {
		h.ErrorHandler.HandleValidationErrors(w, map[string]string{
			"softwares": "softwares must be a non-empty list",
		})
		return
	}

	items := make([]service.SoftwareItem, len(req.Softwares))
	for i, sw := range req.Softwares {
		items[i] = service.SoftwareItem{
			Name:         sw.Name,
			Version:      sw.Version,
			Manufacturer: sw.Manufacturer,
			InstallDate:  sw.InstallDate,
			LicenseKey:   sw.LicenseKey,
		}
	}

	ids, itemErrors, err := h.Sync.ReconcileSoftwareBatch(ctx, items)
	if err != nil {
		h.ErrorHandler.HandleServiceError(w, err, "sync softwares")
		return
	}

	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}
	if itemErrors == nil {
		itemErrors = []service.BatchItemError{}
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, syncSoftwaresResponse{
		SoftwareIDs: idStrings,
		Total:       len(idStrings),
		ErrorsCount: len(itemErrors),
		Errors:      itemErrors,
	})
}

// SyncAssociationsHandler handles POST sync-equipamento-softwares.
func (h *AgentHandler) SyncAssociationsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), DefaultTimeout)
	defer cancel()

	var req syncAssociationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ErrorHandler.HandleJSONDecodeError(w, err)
		return
	}

	equipmentID, ok := h.ErrorHandler.ParseAndValidateUUID(w, "equipamento_id", req.EquipmentID)
	if !ok {
		return
	}

	softwareIDs := make([]uuid.UUID, len(req.SoftwareIDs))
	for i, idStr := range req.SoftwareIDs {
		id, ok := h.ErrorHandler.ParseAndValidateUUID(w, "software_ids", idStr)
		if !ok {
			return
		}
		softwareIDs[i] = id
	}

	total, err := h.Sync.SyncAssociations(ctx, equipmentID, softwareIDs)
	if err != nil {
		h.ErrorHandler.HandleServiceError(w, err, "sync associations")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, syncAssociationsResponse{
		Message:        "Softwares sincronizados com sucesso",
		TotalSoftwares: total,
	})
}

// HealthHandler provides a health check endpoint
func (h *AgentHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"service":   "lab-inventory-api",
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// validateEquipmentEnvelope checks required top-level fields before any
// pipeline work happens.
func validateEquipmentEnvelope(req *syncEquipmentRequest) map[string]string {
	errors := make(map[string]string)

	if req.Hostname == "" {
		errors["hostname"] = "hostname is required"
	}
	if req.LabID == "" {
		errors["laboratorio_id"] = "laboratorio_id is required"
	}
	if req.DataHash == "" {
		errors["dados_hash"] = "dados_hash is required"
	}

	if len(errors) == 0 {
		return nil
	}
	return errors
}
