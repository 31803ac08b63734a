package dto

import "strings"

// PostureType selects the rule-set the analyzer applies to a frame.
type PostureType string

const (
	PostureSitting  PostureType = "sitting"
	PostureStanding PostureType = "standing"

	DefaultPostureType = PostureSitting
)

// ParsePostureType normalizes a caller-supplied label. Empty input yields
// DefaultPostureType. The second return value reports whether the label is supported.
func ParsePostureType(s string) (PostureType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultPostureType, true
	}
	pt := PostureType(s)
	return pt, pt.Supported()
}

func (p PostureType) Supported() bool {
	return p == PostureSitting || p == PostureStanding
}

// PostureResult is the analyzer judgment as it leaves the server. It never
// carries raw pixel data; the annotated frame travels as a data URI.
type PostureResult struct {
	IsGoodPosture     bool               `json:"is_good_posture"`
	PostureType       PostureType        `json:"posture_type"`
	LandmarksDetected bool               `json:"landmarks_detected"`
	Issues            []string           `json:"issues"`
	Angles            map[string]float64 `json:"angles,omitempty"`
	AnnotatedImage    string             `json:"annotated_image,omitempty"`
}

// FrameResult is a PostureResult tagged with its position in a video.
type FrameResult struct {
	PostureResult
	FrameNumber int     `json:"frame_number"`
	Timestamp   float64 `json:"timestamp"`
}
