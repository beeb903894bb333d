package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"agendei/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorBody{Error: message})
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrSessionExpired):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrWrite), errors.Is(err, domain.ErrSubscription):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	body := errorBody{Error: err.Error()}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Error = verr.Message
		body.Field = verr.Field
	}
	if code == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	writeJSON(w, code, body)
}
