package ai

import (
	"image"
	"sync"

	"postureserver/internal/dto"

	"gocv.io/x/gocv"
)

// Step is one scripted FixedAnalyzer outcome.
type Step struct {
	Good bool
	Err  error
	// MissingVerdict returns a result without IsGoodPosture set.
	MissingVerdict bool
}

// FixedAnalyzer returns predetermined judgments. It backs pipeline tests and
// can be selected with ANALYZER=fixed to run the server without a model.
type FixedAnalyzer struct {
	Good     bool
	Issues   []string
	Err      error
	Annotate bool
	// Script, when non-empty, overrides Good/Err and is consumed one step per
	// call, wrapping around at the end.
	Script []Step

	mu     sync.Mutex
	calls  int
	closed bool
}

func (f *FixedAnalyzer) Analyze(frame gocv.Mat, posture dto.PostureType) (Analysis, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()

	step := Step{Good: f.Good, Err: f.Err}
	if len(f.Script) > 0 {
		step = f.Script[call%len(f.Script)]
	}
	if step.Err != nil {
		return Analysis{}, step.Err
	}

	result := Analysis{
		PostureType:       posture,
		LandmarksDetected: true,
		Issues:            append([]string{}, f.Issues...),
		Angles:            map[string]float64{"neck_inclination": 12.5, "torso_inclination": 4.0},
	}
	if !step.MissingVerdict {
		result.IsGoodPosture = boolPtr(step.Good)
	}

	if f.Annotate {
		annotated := frame.Clone()
		_ = gocv.Rectangle(&annotated, image.Rect(0, 0, annotated.Cols()-1, annotated.Rows()-1), colorGood, 1)
		result.Annotated = &annotated
	}

	return result, nil
}

// Calls returns how many times Analyze has been invoked.
func (f *FixedAnalyzer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FixedAnalyzer) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FixedAnalyzer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
