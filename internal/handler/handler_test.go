package handler_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"postureserver/internal/config"
	"postureserver/internal/dto"
	"postureserver/internal/logger"
	"postureserver/internal/model"
	"postureserver/internal/repository"
	"postureserver/internal/route"
	"postureserver/internal/service"
	"postureserver/internal/service/ai"
	"postureserver/internal/service/codec"
	"postureserver/internal/service/storage"
	"postureserver/internal/service/websocket"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// ========================================
// Test Setup Helpers
// ========================================

type testEnv struct {
	handler   http.Handler
	uploadDir string
	logDir    string
	logger    *logger.Logger
	hub       *websocket.HubService
}

type memoryHistory struct {
	mu      sync.Mutex
	records []model.AnalysisRecord
}

func (h *memoryHistory) Insert(rec *model.AnalysisRecord) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, *rec)
	return int64(len(h.records)), nil
}

func (h *memoryHistory) GetRecent(limit int) ([]model.AnalysisRecord, error) {
	records := h.all()
	if limit < len(records) {
		return records[:limit], nil
	}
	return records, nil
}

func (h *memoryHistory) GetStats() (*model.AnalysisStats, error) {
	return &model.AnalysisStats{TotalAnalyses: len(h.all()), PerSource: map[string]int{}}, nil
}

func (h *memoryHistory) all() []model.AnalysisRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.AnalysisRecord{}, h.records...)
}

func setupTestEnv(t *testing.T, analyzer ai.Analyzer, history repository.AnalysisRepository) *testEnv {
	t.Helper()

	cfg := &config.Config{
		UploadDirectory:   filepath.Join(t.TempDir(), "uploads"),
		LogDirectory:      filepath.Join(t.TempDir(), "logs"),
		VideoWorkers:      1,
		VideoQueueSize:    2,
		VideoSampleStride: 10,
		MaxUploadMB:       5,
		JPEGQuality:       90,
		CORSOrigins:       []string{"*"},
	}

	log, err := logger.NewLogger(cfg.LogDirectory)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	uploads, err := storage.NewUploadStore(cfg.UploadDirectory, log)
	require.NoError(t, err)

	manager := service.NewManager([]ai.Analyzer{analyzer}, history, cfg, log)
	t.Cleanup(manager.Stop)

	hub := websocket.NewHubService(log)
	t.Cleanup(hub.CloseAll)

	return &testEnv{
		handler:   route.SetupRoutes(manager, hub, uploads, cfg, log),
		uploadDir: cfg.UploadDirectory,
		logDir:    cfg.LogDirectory,
		logger:    log,
		hub:       hub,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func encodedFrame(t *testing.T) string {
	t.Helper()

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 120, 200, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	encoded, err := codec.New(90).Encode(frame)
	require.NoError(t, err)
	return encoded
}

func writeTestVideo(t *testing.T, frames int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.avi")
	writer, err := gocv.VideoWriterFile(path, "MJPG", 10, 64, 48, true)
	require.NoError(t, err)

	for i := 0; i < frames; i++ {
		frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(i*7%255), 80, 160, 0), 48, 64, gocv.MatTypeCV8UC3)
		err := writer.Write(frame)
		frame.Close()
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func uploadRequest(t *testing.T, field, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload-video", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func assertUploadDirEmpty(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "transient upload files must be removed")
}

// ========================================
// Health Tests
// ========================================

func TestHealthHandler(t *testing.T) {
	env := setupTestEnv(t, &ai.FixedAnalyzer{Good: true}, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","message":"Posture detection server is running"}`, rec.Body.String())
}

// ========================================
// Analyze Frame Tests
// ========================================

func TestAnalyzeFrameHandler_Success(t *testing.T) {
	env := setupTestEnv(t, &ai.FixedAnalyzer{Good: false, Issues: []string{"leaning"}, Annotate: true}, nil)

	body, _ := json.Marshal(dto.FrameRequest{Image: encodedFrame(t), PostureType: "standing"})
	rec := env.do(httptest.NewRequest(http.MethodPost, "/analyze-frame", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result dto.PostureResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.IsGoodPosture)
	assert.Equal(t, dto.PostureStanding, result.PostureType)
	assert.Equal(t, []string{"leaning"}, result.Issues)
	assert.True(t, strings.HasPrefix(result.AnnotatedImage, codec.JPEGDataURIPrefix))
}

func TestAnalyzeFrameHandler_DefaultsToSitting(t *testing.T) {
	env := setupTestEnv(t, &ai.FixedAnalyzer{Good: true}, nil)

	body, _ := json.Marshal(dto.FrameRequest{Image: encodedFrame(t)})
	rec := env.do(httptest.NewRequest(http.MethodPost, "/analyze-frame", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"posture_type":"sitting"`)
	assert.NotContains(t, rec.Body.String(), "annotated_image")
}

func TestAnalyzeFrameHandler_Failures(t *testing.T) {
	env := setupTestEnv(t, &ai.FixedAnalyzer{Good: true}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed base64", `{"image":"data:image/jpeg;base64,@@@@"}`},
		{"not a data uri", `{"image":"plainstring"}`},
		{"missing image", `{}`},
		{"unknown posture", `{"image":"` + encodedFrame(t) + `","posture_type":"lying"}`},
		{"invalid json", `{"image":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodPost, "/analyze-frame", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}
}

// ========================================
// Upload Video Tests
// ========================================

func TestUploadVideoHandler_Validation(t *testing.T) {
	env := setupTestEnv(t, &ai.FixedAnalyzer{Good: true}, nil)

	tests := []struct {
		name     string
		req      *http.Request
		expected string
	}{
		{"no file", uploadRequest(t, "", "", nil, map[string]string{"posture_type": "sitting"}), "No video file provided"},
		{"wrong field", uploadRequest(t, "file", "clip.mp4", []byte("x"), nil), "No video file provided"},
		{"empty filename", uploadRequest(t, "video", "", []byte("x"), nil), "No file selected"},
		{"text file", uploadRequest(t, "video", "notes.txt", []byte("x"), nil), "Invalid file type"},
		{"unknown posture", uploadRequest(t, "video", "clip.mp4", []byte("x"), map[string]string{"posture_type": "lying"}), "Unsupported posture type: lying"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(tt.req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.expected, decodeError(t, rec))
		})
	}

	assertUploadDirEmpty(t, env.uploadDir)
}

func TestUploadVideoHandler_Success(t *testing.T) {
	history := &memoryHistory{}
	env := setupTestEnv(t, &ai.FixedAnalyzer{Script: []ai.Step{{Good: true}, {Good: false}}}, history)

	rec := env.do(uploadRequest(t, "video", "Desk.AVI", writeTestVideo(t, 25), map[string]string{"posture_type": "sitting"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary dto.VideoSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.TotalFramesAnalyzed)
	assert.Equal(t, 1, summary.BadPostureFrames)
	require.Len(t, summary.FrameResults, 3)
	assert.Equal(t, 20, summary.FrameResults[2].FrameNumber)

	assertUploadDirEmpty(t, env.uploadDir)
	records := history.all()
	require.Len(t, records, 1)
	assert.Equal(t, "Desk.AVI", records[0].Reference)
}

func TestUploadVideoHandler_EmptyVideo(t *testing.T) {
	env := setupTestEnv(t, &ai.FixedAnalyzer{Good: true}, nil)

	rec := env.do(uploadRequest(t, "video", "empty.mp4", nil, map[string]string{"posture_type": "sitting"}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{
		"total_frames_analyzed": 0,
		"bad_posture_frames": 0,
		"good_posture_percentage": 0,
		"skipped_frames": 0,
		"frame_results": []
	}`, rec.Body.String())
	assertUploadDirEmpty(t, env.uploadDir)
}

func TestUploadVideoHandler_UnreadableVideo(t *testing.T) {
	env := setupTestEnv(t, &ai.FixedAnalyzer{Good: true}, nil)

	rec := env.do(uploadRequest(t, "video", "broken.mp4", []byte("this is not a video container"), nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, decodeError(t, rec))
	assertUploadDirEmpty(t, env.uploadDir)
}

func TestUploadVideoHandler_TooLarge(t *testing.T) {
	env := setupTestEnv(t, &ai.FixedAnalyzer{Good: true}, nil)

	rec := env.do(uploadRequest(t, "video", "huge.mp4", bytes.Repeat([]byte{0}, 6<<20), nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assertUploadDirEmpty(t, env.uploadDir)
}

// ========================================
// Streaming Tests
// ========================================

func dialStream(t *testing.T, env *testEnv) *gorilla.Conn {
	t.Helper()

	srv := httptest.NewServer(env.handler)
	t.Cleanup(srv.Close)

	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	return conn
}

func readEvent(t *testing.T, conn *gorilla.Conn) dto.StreamMessage {
	t.Helper()

	var msg dto.StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamHandler_ConnectedGreeting(t *testing.T) {
	env := setupTestEnv(t, &ai.FixedAnalyzer{Good: true}, nil)
	conn := dialStream(t, env)

	msg := readEvent(t, conn)
	require.Equal(t, dto.EventConnected, msg.Event)

	var hello dto.ConnectedMessage
	require.NoError(t, json.Unmarshal(msg.Data, &hello))
	assert.Equal(t, "Connected to posture analysis server", hello.Data)
	assert.NotEmpty(t, hello.ClientID)
}

func TestStreamHandler_FramesAnsweredInOrder(t *testing.T) {
	fixed := &ai.FixedAnalyzer{Script: []ai.Step{{Good: true}, {Good: false}, {Good: true}}}
	env := setupTestEnv(t, fixed, nil)
	conn := dialStream(t, env)
	readEvent(t, conn)

	image := encodedFrame(t)
	for _, posture := range []string{"sitting", "standing", "sitting"} {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"event": dto.EventAnalyzeFrame,
			"data":  dto.FrameRequest{Image: image, PostureType: posture},
		}))
	}

	expected := []struct {
		good    bool
		posture dto.PostureType
	}{
		{true, dto.PostureSitting},
		{false, dto.PostureStanding},
		{true, dto.PostureSitting},
	}
	for _, want := range expected {
		msg := readEvent(t, conn)
		require.Equal(t, dto.EventPostureAnalysis, msg.Event)

		var result dto.PostureResult
		require.NoError(t, json.Unmarshal(msg.Data, &result))
		assert.Equal(t, want.good, result.IsGoodPosture)
		assert.Equal(t, want.posture, result.PostureType)
	}
}

func TestStreamHandler_ErrorsKeepConnectionOpen(t *testing.T) {
	env := setupTestEnv(t, &ai.FixedAnalyzer{Good: true}, nil)
	conn := dialStream(t, env)
	readEvent(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": dto.EventAnalyzeFrame,
		"data":  dto.FrameRequest{Image: "data:image/jpeg;base64,%%%"},
	}))
	msg := readEvent(t, conn)
	require.Equal(t, dto.EventError, msg.Event)

	var failure dto.ErrorMessage
	require.NoError(t, json.Unmarshal(msg.Data, &failure))
	assert.NotEmpty(t, failure.Message)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "dance"}))
	msg = readEvent(t, conn)
	assert.Equal(t, dto.EventError, msg.Event)
	assert.Contains(t, string(msg.Data), "unknown event")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": dto.EventAnalyzeFrame,
		"data":  dto.FrameRequest{Image: encodedFrame(t)},
	}))
	msg = readEvent(t, conn)
	assert.Equal(t, dto.EventPostureAnalysis, msg.Event)
}

func TestStreamHandler_SessionRecordedOnDisconnect(t *testing.T) {
	history := &memoryHistory{}
	env := setupTestEnv(t, &ai.FixedAnalyzer{Good: true}, history)
	conn := dialStream(t, env)
	readEvent(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": dto.EventAnalyzeFrame,
		"data":  dto.FrameRequest{Image: encodedFrame(t), PostureType: "standing"},
	}))
	assert.Equal(t, dto.EventPostureAnalysis, readEvent(t, conn).Event)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "dance"}))
	assert.Equal(t, dto.EventError, readEvent(t, conn).Event)

	require.NoError(t, conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return env.hub.GetClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(history.all()) == 1 }, 5*time.Second, 10*time.Millisecond)

	rec := history.all()[0]
	assert.Equal(t, model.SourceStream, rec.Source)
	assert.Equal(t, "standing", rec.PostureType)
	assert.Equal(t, 1, rec.TotalFrames)
	assert.Equal(t, 1, rec.SkippedFrames, "error replies count as skipped frames")
}

// ========================================
// History Tests
// ========================================

func TestHistoryHandlers(t *testing.T) {
	history := &memoryHistory{records: []model.AnalysisRecord{
		{ID: 2, Source: model.SourceVideo, Reference: "b.mp4"},
		{ID: 1, Source: model.SourceStream, Reference: "client"},
	}}
	env := setupTestEnv(t, &ai.FixedAnalyzer{Good: true}, history)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/history?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var records []model.AnalysisRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "b.mp4", records[0].Reference)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/history/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_analyses":2`)
}

func TestHistoryHandlers_Disabled(t *testing.T) {
	env := setupTestEnv(t, &ai.FixedAnalyzer{Good: true}, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ========================================
// Logs Tests
// ========================================

func TestLogsHandlers(t *testing.T) {
	env := setupTestEnv(t, &ai.FixedAnalyzer{Good: true}, nil)
	env.logger.Warning("disk almost full")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/logs/warning", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk almost full")

	rec = env.do(httptest.NewRequest(http.MethodPost, "/logs/warning/clear", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/logs/warning", nil))
	assert.NotContains(t, rec.Body.String(), "disk almost full")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/logs/debug", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestEnv(t, &ai.FixedAnalyzer{Good: true}, nil)

	body, _ := json.Marshal(dto.FrameRequest{Image: encodedFrame(t)})
	env.do(httptest.NewRequest(http.MethodPost, "/analyze-frame", bytes.NewReader(body)))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "posture_server_analysis_frames_total")
}
