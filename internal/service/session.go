package service

import (
	"sync"
	"time"

	"postureserver/internal/dto"
	"postureserver/internal/model"
	"postureserver/internal/service/summary"
)

// StreamSession counts the results of one streaming connection. Only counts
// are kept, so a long session does not grow.
type StreamSession struct {
	ClientID string
	started  time.Time

	mu      sync.Mutex
	posture dto.PostureType
	total   int
	bad     int
	failed  int
}

// NewStreamSession starts statistics for a newly connected client.
func NewStreamSession(clientID string) *StreamSession {
	return &StreamSession{
		ClientID: clientID,
		started:  time.Now(),
		posture:  dto.DefaultPostureType,
	}
}

// Record counts one answered frame.
func (s *StreamSession) Record(result dto.PostureResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if !result.IsGoodPosture {
		s.bad++
	}
	s.posture = result.PostureType
}

// Fail counts one frame that was answered with an error event.
func (s *StreamSession) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
}

// Counts returns analyzed, bad and failed frame counts.
func (s *StreamSession) Counts() (total, bad, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, s.bad, s.failed
}

// CloseStreamSession records the session in the history store. Sessions that
// never produced a result are not recorded.
func (m *Manager) CloseStreamSession(s *StreamSession) {
	total, bad, failed := s.Counts()
	elapsed := time.Since(s.started)

	m.logger.Info("Stream session %s closed after %s: %d frame(s), %d bad, %d failed",
		s.ClientID, elapsed.Round(time.Second), total, bad, failed)

	if total == 0 {
		return
	}

	s.mu.Lock()
	posture := s.posture
	s.mu.Unlock()

	m.recordHistory(&model.AnalysisRecord{
		Source:         model.SourceStream,
		Reference:      s.ClientID,
		PostureType:    string(posture),
		TotalFrames:    total,
		BadFrames:      bad,
		SkippedFrames:  failed,
		GoodPercentage: summary.GoodPercentage(total, bad),
		DurationMS:     elapsed.Milliseconds(),
	})
}
