package handlers

import (
	"net/http"

	"stigwatch/pkg/logger"
)

// ScansHandler handles scan result imports
type ScansHandler struct {
	svc     ChecklistWorkflow
	maxBody int64
	logger  *logger.Logger
}

// NewScansHandler creates a new ScansHandler
func NewScansHandler(svc ChecklistWorkflow, maxBody int64, log *logger.Logger) *ScansHandler {
	return &ScansHandler{
		svc:     svc,
		maxBody: maxBody,
		logger:  log.WithComponent("scans"),
	}
}

// Import handles POST /api/v1/systems/{id}/scans. The body is the raw XCCDF
// result document.
func (h *ScansHandler) Import(w http.ResponseWriter, r *http.Request) {
	systemID, ok := uuidParam(w, r, h.logger, "id")
	if !ok {
		return
	}
	raw, err := readBody(w, r, h.maxBody)
	if err != nil {
		respondBodyError(w, h.logger, err)
		return
	}

	result, err := h.svc.ImportScan(r.Context(), systemID, raw)
	if err != nil {
		respondServiceError(w, h.logger.WithSystemID(systemID.String()), err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	respondJSON(w, h.logger, status, result)
}
