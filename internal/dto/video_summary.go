package dto

// VideoSummary aggregates the sampled frame results of one uploaded video.
type VideoSummary struct {
	TotalFramesAnalyzed   int           `json:"total_frames_analyzed"`
	BadPostureFrames      int           `json:"bad_posture_frames"`
	GoodPosturePercentage float64       `json:"good_posture_percentage"`
	SkippedFrames         int           `json:"skipped_frames"`
	FrameResults          []FrameResult `json:"frame_results"`
}
