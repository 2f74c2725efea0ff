package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"stigwatch/pkg/logger"
)

// ChecklistsHandler handles checklist document endpoints
type ChecklistsHandler struct {
	svc     ChecklistWorkflow
	maxBody int64
	logger  *logger.Logger
}

// NewChecklistsHandler creates a new ChecklistsHandler
func NewChecklistsHandler(svc ChecklistWorkflow, maxBody int64, log *logger.Logger) *ChecklistsHandler {
	return &ChecklistsHandler{
		svc:     svc,
		maxBody: maxBody,
		logger:  log.WithComponent("checklists"),
	}
}

// Upload handles POST /api/v1/systems/{id}/checklists. The body is the raw
// CKL document.
func (h *ChecklistsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	systemID, ok := uuidParam(w, r, h.logger, "id")
	if !ok {
		return
	}
	raw, err := readBody(w, r, h.maxBody)
	if err != nil {
		respondBodyError(w, h.logger, err)
		return
	}

	rec, err := h.svc.Upload(r.Context(), systemID, raw)
	if err != nil {
		respondServiceError(w, h.logger.WithSystemID(systemID.String()), err)
		return
	}
	w.Header().Set("Location", "/api/v1/checklists/"+rec.ID.String())
	respondJSON(w, h.logger, http.StatusCreated, rec)
}

// ListBySystem handles GET /api/v1/systems/{id}/checklists
func (h *ChecklistsHandler) ListBySystem(w http.ResponseWriter, r *http.Request) {
	systemID, ok := uuidParam(w, r, h.logger, "id")
	if !ok {
		return
	}
	records, err := h.svc.List(r.Context(), systemID)
	if err != nil {
		respondServiceError(w, h.logger.WithSystemID(systemID.String()), err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{
		"data":  records,
		"total": len(records),
	})
}

// Get handles GET /api/v1/checklists/{id}
func (h *ChecklistsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, h.logger, "id")
	if !ok {
		return
	}
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger.WithChecklistID(id.String()), err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, rec)
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Raw handles GET /api/v1/checklists/{id}/raw and returns the stored
// document as a .ckl download
func (h *ChecklistsHandler) Raw(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, h.logger, "id")
	if !ok {
		return
	}
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger.WithChecklistID(id.String()), err)
		return
	}

	name := rec.StigID
	if name == "" {
		name = "checklist"
	}
	if rec.HostName != "" {
		name = rec.HostName + "_" + name
	}
	name = strings.Trim(unsafeFileChars.ReplaceAllString(name, "_"), "_")

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.ckl"`, name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(rec.RawXML)); err != nil {
		h.logger.Warn().Err(err).Msg("failed to write checklist")
	}
}

// Update handles PUT /api/v1/checklists/{id}
func (h *ChecklistsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, h.logger, "id")
	if !ok {
		return
	}
	raw, err := readBody(w, r, h.maxBody)
	if err != nil {
		respondBodyError(w, h.logger, err)
		return
	}
	rec, err := h.svc.Update(r.Context(), id, raw)
	if err != nil {
		respondServiceError(w, h.logger.WithChecklistID(id.String()), err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, rec)
}

// Delete handles DELETE /api/v1/checklists/{id}
func (h *ChecklistsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, h.logger, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		respondServiceError(w, h.logger.WithChecklistID(id.String()), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
