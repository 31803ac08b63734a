package handler

import (
	"encoding/json"
	"net/http"

	"postureserver/internal/apperror"
	"postureserver/internal/dto"
	"postureserver/internal/logger"
	"postureserver/internal/model"
	"postureserver/internal/service"
)

// MaxFrameBodyBytes bounds the JSON body of a single-frame request.
const MaxFrameBodyBytes = 32 << 20

// AnalyzeFrameHandler handles POST /analyze-frame: one data-URI frame in, one
// posture result (with annotated image when available) out.
func AnalyzeFrameHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.FrameRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxFrameBodyBytes)).Decode(&req); err != nil {
			logger.Warning("Invalid analyze-frame body: %v", err)
			writeError(w, http.StatusInternalServerError, "invalid request body: "+err.Error(), logger)
			return
		}

		posture, _ := dto.ParsePostureType(req.PostureType)

		result, err := manager.AnalyzeEncodedFrame(r.Context(), req.Image, posture, model.SourceFrame)
		if err != nil {
			logger.Error("Frame analysis failed: %v", err)
			writeError(w, http.StatusInternalServerError, apperror.Message(err), logger)
			return
		}

		writeJSON(w, http.StatusOK, result, logger)
	}
}
