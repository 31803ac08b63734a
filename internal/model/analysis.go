package model

import "time"

// Analysis sources.
const (
	SourceVideo  = "video"
	SourceStream = "stream"
	// SourceFrame labels single-frame HTTP calls. They are counted in metrics
	// but not stored in history.
	SourceFrame = "frame"
)

// AnalysisRecord is one completed video analysis or stream session. It holds
// counts only; frames and uploaded files are never stored.
type AnalysisRecord struct {
	ID             int64     `json:"id"`
	Source         string    `json:"source"`
	Reference      string    `json:"reference"`
	PostureType    string    `json:"posture_type"`
	TotalFrames    int       `json:"total_frames"`
	BadFrames      int       `json:"bad_frames"`
	SkippedFrames  int       `json:"skipped_frames"`
	GoodPercentage float64   `json:"good_percentage"`
	DurationMS     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// AnalysisStats aggregates all stored records.
type AnalysisStats struct {
	TotalAnalyses  int            `json:"total_analyses"`
	PerSource      map[string]int `json:"per_source"`
	TotalFrames    int            `json:"total_frames"`
	BadFrames      int            `json:"bad_frames"`
	GoodPercentage float64        `json:"good_percentage"`
}
