package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"postureserver/internal/app"
	"postureserver/internal/config"
	"postureserver/internal/dto"
	"postureserver/internal/logger"
	"postureserver/internal/repository"
	"postureserver/internal/repository/sqlite"
	"postureserver/internal/service"
)

func main() {
	cfg := config.Load()

	videoPath := flag.String("video", "", "Video file to analyze")
	posture := flag.String("posture", string(dto.DefaultPostureType), "Posture type (sitting or standing)")
	stride := flag.Int("stride", cfg.VideoSampleStride, "Analyze every N-th frame")
	failFast := flag.Bool("fail-fast", cfg.VideoFailFast, "Abort on the first frame that cannot be analyzed")
	analyzer := flag.String("analyzer", cfg.Analyzer, "Analyzer implementation (pose or fixed)")
	dbPath := flag.String("db", "", "Record the result in this history database")
	verbose := flag.Bool("v", false, "Log progress to stderr")
	flag.Parse()

	if *videoPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	postureType, ok := dto.ParsePostureType(*posture)
	if !ok {
		log.Fatalf("Unsupported posture type: %s", *posture)
	}

	cfg.VideoSampleStride = *stride
	cfg.VideoFailFast = *failFast
	cfg.Analyzer = *analyzer
	cfg.AnalyzerInstances = 1
	cfg.VideoWorkers = 1
	cfg.VideoQueueSize = 1

	lg := logger.NewDiscard()
	if *verbose {
		lg = logger.NewConsole()
	}

	var history repository.AnalysisRepository
	if *dbPath != "" {
		db, err := sqlite.New(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		history = sqlite.NewAnalysisRepository(db)
	}

	analyzers, err := app.NewAnalyzers(cfg, lg)
	if err != nil {
		log.Fatalf("Failed to create analyzer: %v", err)
	}

	manager := service.NewManager(analyzers, history, cfg, lg)
	defer manager.Stop()

	outcome, err := manager.SubmitVideo(service.VideoJob{
		Path:      *videoPath,
		Reference: filepath.Base(*videoPath),
		Posture:   postureType,
	})
	if err != nil {
		log.Fatalf("Failed to queue video: %v", err)
	}

	result := <-outcome
	if result.Err != nil {
		manager.Stop()
		log.Fatalf("Analysis failed: %v", result.Err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Summary); err != nil {
		log.Fatalf("Failed to write summary: %v", err)
	}

	fmt.Fprintf(os.Stderr, "%d frame(s) analyzed, %.1f%% good posture, %d skipped\n",
		result.Summary.TotalFramesAnalyzed, result.Summary.GoodPosturePercentage, result.Summary.SkippedFrames)
}
