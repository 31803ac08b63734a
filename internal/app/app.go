package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postureserver/internal/config"
	"postureserver/internal/logger"
	"postureserver/internal/repository"
	"postureserver/internal/repository/sqlite"
	"postureserver/internal/route"
	"postureserver/internal/service"
	"postureserver/internal/service/ai"
	"postureserver/internal/service/storage"
	"postureserver/internal/service/websocket"
)

type App struct {
	config  *config.Config
	logger  *logger.Logger
	db      *sqlite.DB
	uploads *storage.UploadStore
	hub     *websocket.HubService
	manager *service.Manager
	server  *http.Server
}

// NewApp loads configuration and wires every service. Startup fails only on
// a misconfigured analyzer or an unusable upload or log directory; a broken
// history database disables history.
func NewApp() (*App, error) {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.LogDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	analyzers, err := NewAnalyzers(cfg, log)
	if err != nil {
		log.Close()
		return nil, err
	}

	uploads, err := storage.NewUploadStore(cfg.UploadDirectory, log)
	if err != nil {
		log.Close()
		return nil, err
	}
	if _, err := uploads.Sweep(); err != nil {
		log.Warning("Could not sweep upload directory: %v", err)
	}

	var db *sqlite.DB
	var history repository.AnalysisRepository
	if cfg.HistoryDB != "" {
		db, err = sqlite.New(cfg.HistoryDB)
		if err != nil {
			log.Error("History database unavailable, history disabled: %v", err)
		} else {
			history = sqlite.NewAnalysisRepository(db)
		}
	}

	mng := service.NewManager(analyzers, history, cfg, log)
	hub := websocket.NewHubService(log)

	return &App{
		config:  cfg,
		logger:  log,
		db:      db,
		uploads: uploads,
		hub:     hub,
		manager: mng,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           route.SetupRoutes(mng, hub, uploads, cfg, log),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}, nil
}

// NewAnalyzers builds one analyzer per pool slot.
func NewAnalyzers(cfg *config.Config, log *logger.Logger) ([]ai.Analyzer, error) {
	count := cfg.AnalyzerInstances
	if count <= 0 {
		count = 1
	}

	analyzers := make([]ai.Analyzer, 0, count)
	for i := 0; i < count; i++ {
		switch cfg.Analyzer {
		case config.AnalyzerPose:
			// Each instance loads its own copy of the network.
			analyzers = append(analyzers, ai.NewPoseAnalyzer(cfg.ModelPath, cfg.ConfigPath, cfg.PoseConfidence, log))
		case config.AnalyzerFixed:
			analyzers = append(analyzers, &ai.FixedAnalyzer{Good: true, Annotate: true})
		default:
			return nil, fmt.Errorf("unknown analyzer %q (expected %q or %q)", cfg.Analyzer, config.AnalyzerPose, config.AnalyzerFixed)
		}
	}
	return analyzers, nil
}

// Run serves HTTP until SIGINT/SIGTERM, then shuts down gracefully.
func (a *App) Run() error {
	a.logger.Info("Posture analysis server")
	a.logger.Info("URL: http://localhost:%d", a.config.Port)
	a.logger.Info("Analyzer: %s x%d", a.config.Analyzer, a.config.AnalyzerInstances)
	a.logger.Info("Uploads: %s", a.uploads.Dir())
	if a.db != nil {
		a.logger.Info("History: %s", a.config.HistoryDB)
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	serveErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		a.close()
		return err
	case sig := <-shutdownCh:
		a.logger.Info("Received %s, shutting down", sig)
	}

	return a.Shutdown()
}

// Shutdown stops accepting requests, closes streaming clients, drains the
// video workers and releases the analyzers and the database.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()

	a.hub.CloseAll()
	err := a.server.Shutdown(ctx)
	if err != nil {
		a.logger.Error("Graceful shutdown failed: %v", err)
	}

	a.close()
	return err
}

func (a *App) close() {
	a.manager.Stop()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close history database: %v", err)
		}
	}
	a.logger.Info("Server stopped")
	a.logger.Close()
}
