package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjacquet/mediagen/internal/service"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithField("error", err.Error()).Error("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error:     code,
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeServiceError maps service sentinel errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrInvalidState):
		writeError(w, r, http.StatusBadRequest, "invalid_state", err.Error())
	case errors.Is(err, service.ErrValidation):
		writeError(w, r, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, service.ErrExpired):
		writeError(w, r, http.StatusGone, "expired", err.Error())
	default:
		log.WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"error":      err.Error(),
		}).Error("Request failed")
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
