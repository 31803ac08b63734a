package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Frame outcomes.
const (
	OutcomeGood    = "good"
	OutcomeBad     = "bad"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

var (
	framesAnalyzed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "posture_server",
		Subsystem: "analysis",
		Name:      "frames_total",
		Help:      "Frames passed through the analyzer, by source and outcome.",
	}, []string{"source", "outcome"})
	analysisDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "posture_server",
		Subsystem: "analysis",
		Name:      "frame_duration_seconds",
		Help:      "Time spent analyzing a single frame, including pool wait.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})
	videoJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "posture_server",
		Subsystem: "video",
		Name:      "jobs_total",
		Help:      "Video jobs by final status.",
	}, []string{"status"})
	videoQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "posture_server",
		Subsystem: "video",
		Name:      "queue_depth",
		Help:      "Video jobs waiting for a worker.",
	})
	streamClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "posture_server",
		Subsystem: "stream",
		Name:      "clients",
		Help:      "Currently connected streaming clients.",
	})
)

func init() {
	prometheus.MustRegister(framesAnalyzed, analysisDuration, videoJobs, videoQueueDepth, streamClients)
}

// RecordFrame counts one analyzed frame and observes its latency.
func RecordFrame(source, outcome string, elapsed time.Duration) {
	framesAnalyzed.WithLabelValues(source, outcome).Inc()
	if elapsed > 0 {
		analysisDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	}
}

// RecordVideoJob counts a finished video job ("completed", "failed" or "rejected").
func RecordVideoJob(status string) {
	videoJobs.WithLabelValues(status).Inc()
}

// SetQueueDepth reports the number of queued video jobs.
func SetQueueDepth(n int) {
	videoQueueDepth.Set(float64(n))
}

// SetStreamClients reports the number of connected streaming clients.
func SetStreamClients(n int) {
	streamClients.Set(float64(n))
}
