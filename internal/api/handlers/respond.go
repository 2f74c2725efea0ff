package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"stigwatch/internal/domain/services"
	"stigwatch/internal/infrastructure/database/repository"
	"stigwatch/pkg/logger"
)

const defaultMaxBody = 64 << 20

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, log *logger.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// respondError sends an error response. Server errors are logged.
func respondError(w http.ResponseWriter, log *logger.Logger, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Msg(message)
		}
	}
	respondJSON(w, log, status, resp)
}

// respondServiceError maps workflow errors onto HTTP statuses
func respondServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrSystemNotFound),
		errors.Is(err, services.ErrChecklistNotFound),
		errors.Is(err, repository.ErrNotFound):
		respondError(w, log, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, services.ErrTemplateNotFound):
		respondError(w, log, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, services.ErrEmptyChecklist),
		errors.Is(err, services.ErrNoScanTitle),
		errors.Is(err, services.ErrSystemNameRequired):
		respondError(w, log, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, services.ErrMalformedDocument):
		respondError(w, log, http.StatusBadRequest, "malformed document", err)
	default:
		respondError(w, log, http.StatusInternalServerError, "internal error", err)
	}
}

// readBody reads the request body up to limit bytes
func readBody(w http.ResponseWriter, r *http.Request, limit int64) (string, error) {
	if limit <= 0 {
		limit = defaultMaxBody
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// respondBodyError reports a failed readBody
func respondBodyError(w http.ResponseWriter, log *logger.Logger, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, log, http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit), nil)
		return
	}
	respondError(w, log, http.StatusBadRequest, "failed to read body", err)
}

// uuidParam parses a UUID route parameter, answering 400 when it is invalid
func uuidParam(w http.ResponseWriter, r *http.Request, log *logger.Logger, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(w, log, http.StatusBadRequest, "invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}
