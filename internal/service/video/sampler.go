// Package video iterates the frames of a video container at a fixed stride.
package video

import (
	"errors"
	"os"
	"sync"

	"postureserver/internal/apperror"

	"gocv.io/x/gocv"
)

// DefaultStride is how many decoded frames separate two analyzed frames.
// Higher values lower latency at the cost of temporal resolution.
const DefaultStride = 10

// SampledFrame is a frame selected for analysis. Frame is owned by the
// Sampler and stays valid only until the next call to Next or Close.
type SampledFrame struct {
	Frame     gocv.Mat
	Index     int
	Timestamp float64
}

// source is the subset of *gocv.VideoCapture the sampler needs.
type source interface {
	Read(m *gocv.Mat) bool
	Get(prop gocv.VideoCaptureProperties) float64
	Close() error
}

// Sampler is a single-pass cursor over the sampled frames of one video.
//
//	s, err := video.Open(path, video.DefaultStride)
//	defer s.Close()
//	for s.Next() { f := s.Frame() ... }
//	err = s.Err()
type Sampler struct {
	src     source
	stride  int
	fps     float64
	counter int
	frame   gocv.Mat
	current SampledFrame
	done    bool
	err     error

	closeOnce sync.Once
	closeErr  error
}

// Open opens the video at path. The returned Sampler must be closed.
// An empty file yields no frames; a missing file or a non-empty file
// OpenCV cannot open is a VideoReadError.
func Open(path string, stride int) (*Sampler, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperror.VideoRead("failed to open video", err)
	}
	if info.Size() == 0 {
		return newSampler(emptySource{}, stride), nil
	}

	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		if capture != nil {
			capture.Close()
		}
		return nil, apperror.VideoRead("failed to open video", err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, apperror.VideoRead("failed to open video", errors.New("unsupported or unreadable container"))
	}
	return newSampler(capture, stride), nil
}

// emptySource stands in for a zero-byte upload.
type emptySource struct{}

func (emptySource) Read(*gocv.Mat) bool { return false }

func (emptySource) Get(gocv.VideoCaptureProperties) float64 { return 0 }

func (emptySource) Close() error { return nil }

func newSampler(src source, stride int) *Sampler {
	if stride <= 0 {
		stride = DefaultStride
	}
	return &Sampler{
		src:    src,
		stride: stride,
		fps:    src.Get(gocv.VideoCaptureFPS),
		frame:  gocv.NewMat(),
	}
}

// FPS returns the container frame rate, or 0 when unknown.
func (s *Sampler) FPS() float64 {
	if s.fps > 0 {
		return s.fps
	}
	return 0
}

// Next decodes frames until the next sampled one. It returns false at end of
// stream or on a read error; check Err afterwards.
func (s *Sampler) Next() bool {
	if s.done {
		return false
	}

	for {
		if !s.src.Read(&s.frame) {
			// OpenCV reports end of stream as a failed read.
			s.done = true
			return false
		}
		if s.frame.Empty() {
			s.err = apperror.VideoRead("corrupt video frame", errors.New("decoded frame is empty"))
			s.done = true
			return false
		}

		index := s.counter
		s.counter++

		if index%s.stride == 0 {
			s.current = SampledFrame{
				Frame:     s.frame,
				Index:     index,
				Timestamp: s.timestamp(index),
			}
			return true
		}
	}
}

// Frame returns the frame selected by the last successful Next.
func (s *Sampler) Frame() SampledFrame {
	return s.current
}

// Decoded returns how many frames have been decoded so far.
func (s *Sampler) Decoded() int {
	return s.counter
}

func (s *Sampler) Err() error {
	return s.err
}

func (s *Sampler) timestamp(index int) float64 {
	if s.fps <= 0 {
		return 0
	}
	return float64(index) / s.fps
}

// Close releases the decoder and the frame buffer exactly once.
func (s *Sampler) Close() error {
	s.closeOnce.Do(func() {
		s.done = true
		s.current = SampledFrame{}
		s.frame.Close()
		s.closeErr = s.src.Close()
	})
	return s.closeErr
}

// SampledIndices returns the frame indices a stride selects from a video of
// total frames: {0, stride, 2*stride, ...} ∩ [0, total).
func SampledIndices(total, stride int) []int {
	if stride <= 0 {
		stride = DefaultStride
	}
	if total < 0 {
		total = 0
	}
	indices := make([]int, 0, (total+stride-1)/stride)
	for i := 0; i < total; i += stride {
		indices = append(indices, i)
	}
	return indices
}
