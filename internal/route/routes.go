package route

import (
	"net/http"

	"postureserver/internal/config"
	"postureserver/internal/handler"
	"postureserver/internal/logger"
	"postureserver/internal/middleware"
	"postureserver/internal/service"
	"postureserver/internal/service/storage"
	"postureserver/internal/service/websocket"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers the HTTP, streaming, history, log and metrics endpoints
// and wraps the mux with the CORS and request logging middleware.
func SetupRoutes(manager *service.Manager, hub *websocket.HubService, uploads *storage.UploadStore,
	cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Analysis endpoints
	mux.HandleFunc("GET /health", handler.HealthHandler(logger))
	mux.HandleFunc("POST /analyze-frame", handler.AnalyzeFrameHandler(manager, logger))
	mux.HandleFunc("POST /upload-video", handler.UploadVideoHandler(manager, uploads, cfg, logger))
	mux.HandleFunc("GET /ws", handler.StreamHandler(manager, hub, cfg, logger))

	// History endpoints
	mux.HandleFunc("GET /api/history", handler.GetHistoryHandler(manager.History(), logger))
	mux.HandleFunc("GET /api/history/stats", handler.GetHistoryStatsHandler(manager.History(), logger))

	// Log endpoints
	mux.HandleFunc("GET /logs/{level}", handler.ShowLogsHandler(logger))
	mux.HandleFunc("POST /logs/{level}/clear", handler.ClearLogsHandler(logger))

	mux.Handle("GET /metrics", promhttp.Handler())

	// Apply middleware
	return middleware.LoggingMiddleware(logger)(middleware.CORSMiddleware(cfg.CORSOrigins)(mux))
}
