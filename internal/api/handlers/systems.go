package handlers

import (
	"encoding/json"
	"net/http"

	"stigwatch/pkg/logger"
)

// SystemsHandler handles system endpoints
type SystemsHandler struct {
	svc    ChecklistWorkflow
	logger *logger.Logger
}

// NewSystemsHandler creates a new SystemsHandler
func NewSystemsHandler(svc ChecklistWorkflow, log *logger.Logger) *SystemsHandler {
	return &SystemsHandler{
		svc:    svc,
		logger: log.WithComponent("systems"),
	}
}

// CreateSystemRequest is the body of POST /api/v1/systems
type CreateSystemRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Create handles POST /api/v1/systems
func (h *SystemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSystemRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "invalid request body", err)
		return
	}

	sys, err := h.svc.CreateSystem(r.Context(), req.Name, req.Description)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, sys)
}

// List handles GET /api/v1/systems
func (h *SystemsHandler) List(w http.ResponseWriter, r *http.Request) {
	systems, err := h.svc.ListSystems(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{
		"data":  systems,
		"total": len(systems),
	})
}

// Get handles GET /api/v1/systems/{id}
func (h *SystemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, h.logger, "id")
	if !ok {
		return
	}
	sys, err := h.svc.GetSystem(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger.WithSystemID(id.String()), err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, sys)
}

// Delete handles DELETE /api/v1/systems/{id}
func (h *SystemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, h.logger, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteSystem(r.Context(), id); err != nil {
		respondServiceError(w, h.logger.WithSystemID(id.String()), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
