package handlers

import (
	"net/http"

	"stigwatch/internal/ckl"
	"stigwatch/internal/scan"
	"stigwatch/pkg/logger"
)

// ToolsHandler exposes the stateless document transforms
type ToolsHandler struct {
	maxBody int64
	logger  *logger.Logger
}

// NewToolsHandler creates a new ToolsHandler
func NewToolsHandler(maxBody int64, log *logger.Logger) *ToolsHandler {
	return &ToolsHandler{
		maxBody: maxBody,
		logger:  log.WithComponent("tools"),
	}
}

// Canonicalize handles POST /api/v1/tools/canonicalize
func (h *ToolsHandler) Canonicalize(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r, h.maxBody)
	if err != nil {
		respondBodyError(w, h.logger, err)
		return
	}
	out, err := ckl.Canonicalize(raw)
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "malformed document", err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(out)); err != nil {
		h.logger.Warn().Err(err).Msg("failed to write checklist")
	}
}

// ParseChecklist handles POST /api/v1/tools/parse and returns the checklist
// model as JSON
func (h *ToolsHandler) ParseChecklist(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r, h.maxBody)
	if err != nil {
		respondBodyError(w, h.logger, err)
		return
	}
	c, err := ckl.Parse(raw)
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "malformed document", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, c)
}

// ParseScan handles POST /api/v1/tools/parse-scan and returns the extracted
// scan results as JSON
func (h *ToolsHandler) ParseScan(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r, h.maxBody)
	if err != nil {
		respondBodyError(w, h.logger, err)
		return
	}
	set, err := scan.Parse(raw)
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "malformed document", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, set)
}
