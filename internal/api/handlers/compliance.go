package handlers

import (
	"net/http"
	"strings"

	"stigwatch/internal/domain/models"
	"stigwatch/pkg/logger"
)

// ComplianceHandler serves control-level compliance reports
type ComplianceHandler struct {
	svc           ChecklistWorkflow
	defaultImpact models.ImpactLevel
	logger        *logger.Logger
}

// NewComplianceHandler creates a new ComplianceHandler. defaultImpact is
// used when a request has no filter parameter.
func NewComplianceHandler(svc ChecklistWorkflow, defaultImpact models.ImpactLevel, log *logger.Logger) *ComplianceHandler {
	return &ComplianceHandler{
		svc:           svc,
		defaultImpact: defaultImpact,
		logger:        log.WithComponent("compliance"),
	}
}

// Get handles GET /api/v1/systems/{id}/compliance?filter=&major=
//
// filter is low, moderate, high or all; major scopes the report to one
// control family such as AC or AC-2.
func (h *ComplianceHandler) Get(w http.ResponseWriter, r *http.Request) {
	systemID, ok := uuidParam(w, r, h.logger, "id")
	if !ok {
		return
	}

	impact, ok := h.impactFilter(r.URL.Query().Get("filter"))
	if !ok {
		respondError(w, h.logger, http.StatusBadRequest, "filter must be one of low, moderate, high, all", nil)
		return
	}

	report, err := h.svc.Compliance(r.Context(), systemID, impact, r.URL.Query().Get("major"))
	if err != nil {
		respondServiceError(w, h.logger.WithSystemID(systemID.String()), err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, report)
}

func (h *ComplianceHandler) impactFilter(raw string) (models.ImpactLevel, bool) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "":
		return h.defaultImpact, true
	case "all":
		return "", true
	}
	level := models.ParseImpactLevel(raw)
	return level, level != ""
}
