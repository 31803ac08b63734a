package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"postureserver/internal/apperror"
	"postureserver/internal/config"
	"postureserver/internal/dto"
	"postureserver/internal/logger"
	"postureserver/internal/model"
	"postureserver/internal/observability"
	"postureserver/internal/repository"
	"postureserver/internal/service/ai"
	"postureserver/internal/service/codec"
	"postureserver/internal/service/summary"
	"postureserver/internal/service/video"

	"gocv.io/x/gocv"
)

var (
	// ErrQueueFull is returned by SubmitVideo when no queue slot is free.
	ErrQueueFull = errors.New("video processing queue is full, try again later")
	// ErrStopped is returned by SubmitVideo after Stop.
	ErrStopped = errors.New("video processing is shutting down")
)

// VideoJob is one uploaded video waiting for a worker.
type VideoJob struct {
	Path      string
	Reference string // original client file name, for logs and history
	Posture   dto.PostureType
	// Cleanup runs once the job is finished, whatever the outcome.
	Cleanup func()
}

// VideoOutcome is delivered exactly once per submitted job.
type VideoOutcome struct {
	Summary dto.VideoSummary
	Err     error
}

type queuedJob struct {
	VideoJob
	outcome chan VideoOutcome
}

// Manager runs the frame-analysis pipeline. It owns a pool of analyzer
// gateways (one per instance; gocv.Net is not safe for concurrent use), the
// video job queue and its workers.
type Manager struct {
	codec    *codec.Codec
	gateways []*ai.Gateway
	pool     chan *ai.Gateway
	history  repository.AnalysisRepository
	logger   *logger.Logger

	stride     int
	failFast   bool
	numWorkers int
	jobs       chan queuedJob

	mu       sync.RWMutex // guards stopped and sends on jobs
	stopped  bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager builds the pipeline and starts the video workers. history may be nil.
func NewManager(analyzers []ai.Analyzer, history repository.AnalysisRepository, cfg *config.Config, logger *logger.Logger) *Manager {
	m := newManager(analyzers, history, cfg, logger)
	m.start()
	return m
}

func newManager(analyzers []ai.Analyzer, history repository.AnalysisRepository, cfg *config.Config, logger *logger.Logger) *Manager {
	workers := cfg.VideoWorkers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.VideoQueueSize
	if queueSize <= 0 {
		queueSize = 1
	}

	m := &Manager{
		codec:      codec.New(cfg.JPEGQuality),
		gateways:   make([]*ai.Gateway, 0, len(analyzers)),
		pool:       make(chan *ai.Gateway, len(analyzers)),
		history:    history,
		logger:     logger,
		stride:     cfg.VideoSampleStride,
		failFast:   cfg.VideoFailFast,
		numWorkers: workers,
		jobs:       make(chan queuedJob, queueSize),
	}
	if m.stride <= 0 {
		m.stride = video.DefaultStride
	}

	for _, a := range analyzers {
		g := ai.NewGateway(a)
		m.gateways = append(m.gateways, g)
		m.pool <- g
	}
	return m
}

func (m *Manager) start() {
	for i := 0; i < m.numWorkers; i++ {
		m.wg.Add(1)
		go m.videoWorker(i)
	}
	m.logger.Info("Manager started: %d analyzer(s), %d video worker(s), sampling every %d frame(s)",
		len(m.gateways), m.numWorkers, m.stride)
}

// History returns the analysis history store, or nil when disabled.
func (m *Manager) History() repository.AnalysisRepository {
	return m.history
}

// QueueDepth returns the number of video jobs waiting for a worker.
func (m *Manager) QueueDepth() int {
	return len(m.jobs)
}

// AnalyzeEncodedFrame decodes a data-URI frame, analyzes it and returns the
// result with the annotated frame encoded when the analyzer produced one.
func (m *Manager) AnalyzeEncodedFrame(ctx context.Context, image string, posture dto.PostureType, source string) (dto.PostureResult, error) {
	frame, err := m.codec.Decode(image)
	if err != nil {
		observability.RecordFrame(source, observability.OutcomeFailed, 0)
		return dto.PostureResult{}, err
	}
	defer frame.Close()

	start := time.Now()
	analysis, err := m.analyze(ctx, frame, posture)
	if err != nil {
		observability.RecordFrame(source, observability.OutcomeFailed, time.Since(start))
		return dto.PostureResult{}, err
	}

	result, err := m.finalize(&analysis, true)
	if err != nil {
		observability.RecordFrame(source, observability.OutcomeFailed, time.Since(start))
		return dto.PostureResult{}, err
	}

	observability.RecordFrame(source, outcomeOf(result), time.Since(start))
	return result, nil
}

// ProcessVideo samples the video at path and folds every analyzed frame into
// a summary. Frames whose analysis fails are skipped unless fail-fast is
// enabled; read errors always abort.
func (m *Manager) ProcessVideo(ctx context.Context, path string, posture dto.PostureType) (dto.VideoSummary, error) {
	if !posture.Supported() {
		return dto.VideoSummary{}, apperror.Validation("unsupported posture type: " + string(posture))
	}

	sampler, err := video.Open(path, m.stride)
	if err != nil {
		return dto.VideoSummary{}, err
	}
	defer sampler.Close()

	acc := summary.NewAccumulator()
	for sampler.Next() {
		sampled := sampler.Frame()

		start := time.Now()
		analysis, err := m.analyze(ctx, sampled.Frame, posture)
		if err == nil {
			var result dto.PostureResult
			result, err = m.finalize(&analysis, false)
			if err == nil {
				observability.RecordFrame(model.SourceVideo, outcomeOf(result), time.Since(start))
				acc.Add(dto.FrameResult{
					PostureResult: result,
					FrameNumber:   sampled.Index,
					Timestamp:     sampled.Timestamp,
				})
				continue
			}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return dto.VideoSummary{}, ctxErr
		}
		if m.failFast {
			observability.RecordFrame(model.SourceVideo, observability.OutcomeFailed, time.Since(start))
			return dto.VideoSummary{}, err
		}
		observability.RecordFrame(model.SourceVideo, observability.OutcomeSkipped, time.Since(start))
		m.logger.Warning("Skipping frame %d of %s: %v", sampled.Index, filepath.Base(path), err)
		acc.Skip()
	}

	if err := sampler.Err(); err != nil {
		return dto.VideoSummary{}, err
	}

	return acc.Summary(), nil
}

// SubmitVideo queues job for a video worker without blocking. The returned
// channel receives exactly one outcome.
func (m *Manager) SubmitVideo(job VideoJob) (<-chan VideoOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.stopped {
		return nil, ErrStopped
	}

	queued := queuedJob{VideoJob: job, outcome: make(chan VideoOutcome, 1)}
	select {
	case m.jobs <- queued:
		observability.SetQueueDepth(len(m.jobs))
		m.logger.Info("Video %s queued (%d waiting)", job.Reference, len(m.jobs))
		return queued.outcome, nil
	default:
		observability.RecordVideoJob("rejected")
		m.logger.Warning("Video queue full, rejecting %s", job.Reference)
		return nil, ErrQueueFull
	}
}

// videoWorker runs queued jobs to completion.
func (m *Manager) videoWorker(workerID int) {
	defer m.wg.Done()

	m.logger.Info("Video worker %d started", workerID)

	for job := range m.jobs {
		observability.SetQueueDepth(len(m.jobs))
		job.outcome <- m.runJob(job.VideoJob, workerID)
	}

	m.logger.Info("Video worker %d stopped", workerID)
}

func (m *Manager) runJob(job VideoJob, workerID int) VideoOutcome {
	if job.Cleanup != nil {
		defer job.Cleanup()
	}

	start := time.Now()
	m.logger.Info("Worker %d processing %s (%s)", workerID, job.Reference, job.Posture)

	result, err := m.ProcessVideo(context.Background(), job.Path, job.Posture)
	if err != nil {
		observability.RecordVideoJob("failed")
		m.logger.Error("Video %s failed: %v", job.Reference, err)
		return VideoOutcome{Err: err}
	}

	elapsed := time.Since(start)
	observability.RecordVideoJob("completed")
	m.logger.Info("Video %s done in %s: %d frame(s), %d bad, %d skipped",
		job.Reference, elapsed.Round(time.Millisecond), result.TotalFramesAnalyzed, result.BadPostureFrames, result.SkippedFrames)

	m.recordHistory(&model.AnalysisRecord{
		Source:         model.SourceVideo,
		Reference:      job.Reference,
		PostureType:    string(job.Posture),
		TotalFrames:    result.TotalFramesAnalyzed,
		BadFrames:      result.BadPostureFrames,
		SkippedFrames:  result.SkippedFrames,
		GoodPercentage: result.GoodPosturePercentage,
		DurationMS:     elapsed.Milliseconds(),
	})

	return VideoOutcome{Summary: result}
}

// analyze borrows a gateway from the pool for the duration of one call.
func (m *Manager) analyze(ctx context.Context, frame gocv.Mat, posture dto.PostureType) (ai.Analysis, error) {
	var g *ai.Gateway
	select {
	case g = <-m.pool:
	case <-ctx.Done():
		return ai.Analysis{}, ctx.Err()
	}
	defer func() { m.pool <- g }()

	return g.Analyze(frame, posture)
}

// finalize converts an analysis into its wire form and releases the annotated
// frame. With withImage the annotated frame is encoded into AnnotatedImage;
// otherwise it is dropped.
func (m *Manager) finalize(analysis *ai.Analysis, withImage bool) (dto.PostureResult, error) {
	defer analysis.Close()

	result := analysis.Result()
	if withImage && analysis.Annotated != nil && !analysis.Annotated.Empty() {
		encoded, err := m.codec.Encode(*analysis.Annotated)
		if err != nil {
			return dto.PostureResult{}, apperror.Analysis("failed to encode annotated frame", err)
		}
		result.AnnotatedImage = encoded
	}
	return result, nil
}

func (m *Manager) recordHistory(rec *model.AnalysisRecord) {
	if m.history == nil {
		return
	}
	if _, err := m.history.Insert(rec); err != nil {
		m.logger.Error("Failed to record %s analysis %s: %v", rec.Source, rec.Reference, err)
	}
}

// Stop stops accepting jobs, waits for running and queued jobs to finish and
// closes the analyzers.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		close(m.jobs)
		m.mu.Unlock()

		m.wg.Wait()
		m.logger.Info("All video workers stopped")

		for _, g := range m.gateways {
			if err := g.Close(); err != nil {
				m.logger.Error("Failed to close analyzer: %v", err)
			}
		}
	})
}

func outcomeOf(result dto.PostureResult) string {
	if result.IsGoodPosture {
		return observability.OutcomeGood
	}
	return observability.OutcomeBad
}
