package ai

import (
	"postureserver/internal/dto"

	"gocv.io/x/gocv"
)

// Analyzer judges the posture of the person in a single BGR frame.
// Implementations are not required to be safe for concurrent use.
type Analyzer interface {
	Analyze(frame gocv.Mat, posture dto.PostureType) (Analysis, error)
	Close() error
}

// Analysis is the raw analyzer output. Annotated, when non-nil, is owned by the
// Analysis and released by Close.
type Analysis struct {
	IsGoodPosture     *bool
	PostureType       dto.PostureType
	LandmarksDetected bool
	Issues            []string
	Angles            map[string]float64
	Annotated         *gocv.Mat
}

// Close releases the annotated frame, if any. Safe to call more than once.
func (a *Analysis) Close() {
	if a.Annotated != nil {
		a.Annotated.Close()
		a.Annotated = nil
	}
}

// Result converts the analysis into its wire form without the annotated frame.
func (a *Analysis) Result() dto.PostureResult {
	result := dto.PostureResult{
		PostureType:       a.PostureType,
		LandmarksDetected: a.LandmarksDetected,
		Issues:            a.Issues,
		Angles:            a.Angles,
	}
	if a.IsGoodPosture != nil {
		result.IsGoodPosture = *a.IsGoodPosture
	}
	if result.Issues == nil {
		result.Issues = []string{}
	}
	return result
}

func boolPtr(b bool) *bool {
	return &b
}
