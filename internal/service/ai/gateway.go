package ai

import (
	"errors"
	"fmt"

	"postureserver/internal/apperror"
	"postureserver/internal/dto"

	"gocv.io/x/gocv"
)

// Gateway is the single call-point into an Analyzer instance. It validates
// inputs and the shape of the result and reports every failure as an
// analysis error. It never retries and never touches the annotated frame.
type Gateway struct {
	analyzer Analyzer
}

func NewGateway(analyzer Analyzer) *Gateway {
	return &Gateway{analyzer: analyzer}
}

func (g *Gateway) Analyze(frame gocv.Mat, posture dto.PostureType) (result Analysis, err error) {
	if !posture.Supported() {
		return Analysis{}, apperror.Analysis(fmt.Sprintf("unsupported posture type %q", posture), nil)
	}
	if frame.Empty() {
		return Analysis{}, apperror.Analysis("frame is empty", nil)
	}

	defer func() {
		if r := recover(); r != nil {
			result.Close()
			result = Analysis{}
			err = apperror.Analysis("posture analysis failed", fmt.Errorf("analyzer panic: %v", r))
		}
	}()

	result, err = g.analyzer.Analyze(frame, posture)
	if err != nil {
		result.Close()
		if errors.Is(err, apperror.ErrAnalysis) {
			return Analysis{}, err
		}
		return Analysis{}, apperror.Analysis("posture analysis failed", err)
	}

	if result.IsGoodPosture == nil {
		result.Close()
		return Analysis{}, apperror.Analysis("analyzer result is missing is_good_posture", nil)
	}
	if result.PostureType == "" {
		result.PostureType = posture
	}
	if result.Issues == nil {
		result.Issues = []string{}
	}

	return result, nil
}

func (g *Gateway) Close() error {
	return g.analyzer.Close()
}
