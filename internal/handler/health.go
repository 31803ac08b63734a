package handler

import (
	"net/http"

	"postureserver/internal/dto"
	"postureserver/internal/logger"
)

// HealthHandler reports liveness. It does not check the analyzers.
func HealthHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, dto.HealthResponse{
			Status:  "healthy",
			Message: "Posture detection server is running",
		}, logger)
	}
}
