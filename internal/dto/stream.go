package dto

import "encoding/json"

// Streaming channel event names.
const (
	EventConnected       = "connected"
	EventAnalyzeFrame    = "analyze_webcam_frame"
	EventPostureAnalysis = "posture_analysis"
	EventError           = "error"
)

// StreamMessage is the envelope of every message on the streaming channel.
type StreamMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// FrameRequest is the body of POST /analyze-frame and of analyze_webcam_frame events.
type FrameRequest struct {
	Image       string `json:"image"`
	PostureType string `json:"posture_type,omitempty"`
}

type ConnectedMessage struct {
	Data     string `json:"data"`
	ClientID string `json:"client_id"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every failed HTTP call.
type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
