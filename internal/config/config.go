package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// AnalyzerPose selects the gocv pose-estimation analyzer.
	AnalyzerPose = "pose"
	// AnalyzerFixed selects the deterministic analyzer used for development without a model.
	AnalyzerFixed = "fixed"
)

type Config struct {
	Port              int
	UploadDirectory   string
	LogDirectory      string
	Analyzer          string
	ModelPath         string
	ConfigPath        string
	PoseConfidence    float64
	AnalyzerInstances int // Number of analyzer instances in the pool (one gocv.Net each)
	VideoWorkers      int
	VideoQueueSize    int
	VideoSampleStride int // Analyze every N-th decoded video frame
	VideoFailFast     bool
	MaxUploadMB       int64
	JPEGQuality       int
	HistoryDB         string // Empty disables the analysis history store
	CORSOrigins       []string
	ShutdownTimeout   time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		Port:              getEnvAsInt("PORT", 5000),
		UploadDirectory:   getEnv("UPLOAD_DIR", "uploads"),
		LogDirectory:      getEnv("LOG_DIR", filepath.Join(".", "logs")),
		Analyzer:          getEnv("ANALYZER", AnalyzerPose),
		ModelPath:         getEnv("MODEL_PATH", filepath.Join(".", "models", "pose_iter_440000.caffemodel")),
		ConfigPath:        getEnv("CONFIG_PATH", filepath.Join(".", "models", "pose_deploy_linevec.prototxt")),
		PoseConfidence:    getEnvAsFloat("POSE_CONFIDENCE", 0.1),
		AnalyzerInstances: getEnvAsInt("ANALYZER_INSTANCES", 2),
		VideoWorkers:      getEnvAsInt("VIDEO_WORKERS", 2),
		VideoQueueSize:    getEnvAsInt("VIDEO_QUEUE_SIZE", 8),
		VideoSampleStride: getEnvAsInt("VIDEO_SAMPLE_STRIDE", 10),
		VideoFailFast:     getEnvAsBool("VIDEO_FAIL_FAST", false),
		MaxUploadMB:       getEnvAsInt64("MAX_UPLOAD_MB", 500),
		JPEGQuality:       getEnvAsInt("JPEG_QUALITY", 90),
		HistoryDB:         lookupEnv("HISTORY_DB", filepath.Join(".", "data", "history.db")),
		CORSOrigins:       splitAndTrim(getEnv("CORS_ORIGINS", "*")),
		ShutdownTimeout:   getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// lookupEnv is like getEnv but honors a variable that is set to the empty string.
func lookupEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
