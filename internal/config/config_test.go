package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("VIDEO_SAMPLE_STRIDE", "")
	t.Setenv("VIDEO_FAIL_FAST", "")

	cfg := Load()

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 10, cfg.VideoSampleStride)
	assert.False(t, cfg.VideoFailFast)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("VIDEO_SAMPLE_STRIDE", "5")
	t.Setenv("VIDEO_FAIL_FAST", "true")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000, http://example.com ,")
	t.Setenv("ANALYZER", AnalyzerFixed)

	cfg := Load()

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, 5, cfg.VideoSampleStride)
	assert.True(t, cfg.VideoFailFast)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "http://example.com"}, cfg.CORSOrigins)
	assert.Equal(t, AnalyzerFixed, cfg.Analyzer)
}

func TestGetEnvAsInt_InvalidFallsBack(t *testing.T) {
	tests := []struct {
		value    string
		expected int
	}{
		{"abc", 7},
		{"-1", 7},
		{"0", 7},
		{"12", 12},
	}

	for _, tt := range tests {
		t.Setenv("TEST_INT", tt.value)
		if got := getEnvAsInt("TEST_INT", 7); got != tt.expected {
			t.Errorf("getEnvAsInt(%q) = %d, expected %d", tt.value, got, tt.expected)
		}
	}
}

func TestGetEnv_EmptyDisablesHistory(t *testing.T) {
	t.Setenv("HISTORY_DB", "")

	cfg := Load()

	assert.Empty(t, cfg.HistoryDB)
}
