package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"postureserver/internal/logger"
)

var logLevels = map[string]bool{
	logger.LevelInfo:    true,
	logger.LevelWarning: true,
	logger.LevelError:   true,
}

// ShowLogsHandler serves /logs/{level} (info, warning or error) as text/plain.
func ShowLogsHandler(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		level := r.PathValue("level")
		if !logLevels[level] {
			http.NotFound(w, r)
			return
		}
		serveLogFile(w, r, log.Dir(), level+".log")
	}
}

// serveLogFile is a helper that sets headers and serves a log file if it exists.
func serveLogFile(w http.ResponseWriter, r *http.Request, logDir, filename string) {
	if logDir == "" {
		http.NotFound(w, r)
		return
	}
	filePath := filepath.Join(logDir, filename)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Log file not found: " + filename))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	http.ServeFile(w, r, filePath)
}

// ClearLogsHandler truncates the log file of /logs/{level}/clear.
func ClearLogsHandler(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		level := r.PathValue("level")
		if !logLevels[level] {
			http.NotFound(w, r)
			return
		}
		if err := log.CleanLogs(level); err != nil {
			log.Error("Failed to clear %s logs: %v", level, err)
			writeError(w, http.StatusInternalServerError, "failed to clear logs", log)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
