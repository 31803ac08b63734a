package handler

import (
	"errors"
	"net/http"

	"postureserver/internal/apperror"
	"postureserver/internal/config"
	"postureserver/internal/dto"
	"postureserver/internal/logger"
	"postureserver/internal/service"
	"postureserver/internal/service/storage"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// UploadVideoHandler handles POST /upload-video. The upload is stored under a
// generated name, analyzed by a video worker and removed afterwards.
func UploadVideoHandler(manager *service.Manager, uploads *storage.UploadStore, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadMB<<20)

		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "File too large", logger)
				return
			}
			writeError(w, http.StatusBadRequest, "No video file provided", logger)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("video")
		if err != nil {
			// A part without a filename is parsed as a plain value.
			if _, ok := r.MultipartForm.Value["video"]; ok {
				writeError(w, http.StatusBadRequest, "No file selected", logger)
				return
			}
			writeError(w, http.StatusBadRequest, "No video file provided", logger)
			return
		}
		defer file.Close()

		if header.Filename == "" {
			writeError(w, http.StatusBadRequest, "No file selected", logger)
			return
		}
		if !storage.AllowedVideoFile(header.Filename) {
			writeError(w, http.StatusBadRequest, "Invalid file type", logger)
			return
		}

		posture, ok := dto.ParsePostureType(r.FormValue("posture_type"))
		if !ok {
			writeError(w, http.StatusBadRequest, "Unsupported posture type: "+string(posture), logger)
			return
		}

		path, err := uploads.Save(file, header.Filename)
		if err != nil {
			logger.Error("Error saving upload %s: %v", header.Filename, err)
			writeError(w, http.StatusInternalServerError, "failed to store upload", logger)
			return
		}

		outcome, err := manager.SubmitVideo(service.VideoJob{
			Path:      path,
			Reference: header.Filename,
			Posture:   posture,
			Cleanup:   func() { uploads.Remove(path) },
		})
		if err != nil {
			uploads.Remove(path)
			writeError(w, statusFor(err), err.Error(), logger)
			return
		}

		select {
		case out := <-outcome:
			if out.Err != nil {
				writeError(w, statusFor(out.Err), apperror.Message(out.Err), logger)
				return
			}
			writeJSON(w, http.StatusOK, out.Summary, logger)
		case <-r.Context().Done():
			// The job keeps running and removes its file when done.
			logger.Warning("Client gave up waiting for %s", header.Filename)
		}
	}
}
