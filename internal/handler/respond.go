package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"postureserver/internal/apperror"
	"postureserver/internal/dto"
	"postureserver/internal/logger"
	"postureserver/internal/service"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// writeError sends {"error": message}.
func writeError(w http.ResponseWriter, status int, message string, logger *logger.Logger) {
	writeJSON(w, status, dto.ErrorResponse{Error: message}, logger)
}

// statusFor maps pipeline failures to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrQueueFull), errors.Is(err, service.ErrStopped):
		return http.StatusServiceUnavailable
	case apperror.KindOf(err) == apperror.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
