// Package summary folds per-frame posture results into video statistics.
package summary

import "postureserver/internal/dto"

// Accumulator builds a VideoSummary incrementally. Results are kept in the
// order they are added. It holds no pixel data.
type Accumulator struct {
	results []dto.FrameResult
	bad     int
	skipped int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{results: make([]dto.FrameResult, 0)}
}

// Add records the result of one analyzed frame. Any annotated image is dropped.
func (a *Accumulator) Add(result dto.FrameResult) {
	result.AnnotatedImage = ""
	if !result.IsGoodPosture {
		a.bad++
	}
	a.results = append(a.results, result)
}

// Skip records a frame whose analysis failed and was left out.
func (a *Accumulator) Skip() {
	a.skipped++
}

// Count returns the number of frames added so far.
func (a *Accumulator) Count() int {
	return len(a.results)
}

func (a *Accumulator) Summary() dto.VideoSummary {
	results := make([]dto.FrameResult, len(a.results))
	copy(results, a.results)

	return dto.VideoSummary{
		TotalFramesAnalyzed:   len(results),
		BadPostureFrames:      a.bad,
		GoodPosturePercentage: GoodPercentage(len(results), a.bad),
		SkippedFrames:         a.skipped,
		FrameResults:          results,
	}
}

// Summarize folds an ordered sequence of frame results.
func Summarize(results []dto.FrameResult) dto.VideoSummary {
	acc := NewAccumulator()
	for _, r := range results {
		acc.Add(r)
	}
	return acc.Summary()
}

// GoodPercentage is (total-bad)/total*100, or 0 when total is 0.
func GoodPercentage(total, bad int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(total-bad) / float64(total) * 100
}
