package handler

import (
	"net/http"
	"strconv"

	"postureserver/internal/logger"
	"postureserver/internal/repository"
)

// MaxHistoryLimit caps the limit query parameter of /api/history.
const MaxHistoryLimit = 500

// GetHistoryHandler returns the most recent analyses, newest first.
func GetHistoryHandler(history repository.AnalysisRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if history == nil {
			writeError(w, http.StatusNotFound, "history is disabled", logger)
			return
		}

		limit := atoiDefault(r.URL.Query().Get("limit"), 50)
		if limit > MaxHistoryLimit {
			limit = MaxHistoryLimit
		}

		records, err := history.GetRecent(limit)
		if err != nil {
			logger.Error("Error querying history: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error", logger)
			return
		}

		writeJSON(w, http.StatusOK, records, logger)
	}
}

// GetHistoryStatsHandler returns totals over every stored analysis.
func GetHistoryStatsHandler(history repository.AnalysisRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if history == nil {
			writeError(w, http.StatusNotFound, "history is disabled", logger)
			return
		}

		stats, err := history.GetStats()
		if err != nil {
			logger.Error("Error computing history stats: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error", logger)
			return
		}

		writeJSON(w, http.StatusOK, stats, logger)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
