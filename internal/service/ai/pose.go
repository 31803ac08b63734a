package ai

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"

	"postureserver/internal/dto"
	"postureserver/internal/logger"

	"gocv.io/x/gocv"
)

const (
	// PoseInputSize is the network input resolution of the OpenPose COCO model.
	PoseInputSize = 368
	// DefaultKeypointConfidence is the minimum heatmap peak for a body part to count as detected.
	DefaultKeypointConfidence = 0.1
)

// skeleton lists the COCO limb pairs drawn on annotated frames.
var skeleton = [][2]int{
	{Neck, RShoulder}, {Neck, LShoulder},
	{RShoulder, RElbow}, {RElbow, RWrist},
	{LShoulder, LElbow}, {LElbow, LWrist},
	{Neck, RHip}, {RHip, RKnee}, {RKnee, RAnkle},
	{Neck, LHip}, {LHip, LKnee}, {LKnee, LAnkle},
	{Neck, Nose}, {Nose, REye}, {REye, REar}, {Nose, LEye}, {LEye, LEar},
}

var (
	colorGood   = color.RGBA{R: 0, G: 200, B: 0, A: 0}
	colorBad    = color.RGBA{R: 230, G: 30, B: 30, A: 0}
	colorJoint  = color.RGBA{R: 255, G: 200, B: 0, A: 0}
	colorStatus = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// PoseAnalyzer estimates body keypoints with an OpenPose DNN and classifies
// them with the posture rules. A gocv.Net must not be shared between
// goroutines, so the server keeps one PoseAnalyzer per pool slot.
type PoseAnalyzer struct {
	net        gocv.Net
	ready      bool
	modelPath  string
	configPath string
	confidence float32
	logger     *logger.Logger
	mu         sync.Mutex
}

// NewPoseAnalyzer loads the pose network from model/config paths. A missing
// or unreadable model is logged; Analyze then fails until the server is
// restarted with a valid model.
func NewPoseAnalyzer(modelPath, configPath string, confidence float64, logger *logger.Logger) *PoseAnalyzer {
	if confidence <= 0 {
		confidence = DefaultKeypointConfidence
	}
	a := &PoseAnalyzer{
		modelPath:  modelPath,
		configPath: configPath,
		confidence: float32(confidence),
		logger:     logger,
	}

	if err := a.initializeNet(); err != nil {
		a.logger.Warning("Could not initialize pose network: %v", err)
	}
	return a
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (a *PoseAnalyzer) initializeNet() error {
	if _, err := os.Stat(a.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", a.modelPath)
	}

	if _, err := os.Stat(a.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", a.configPath)
	}

	net := gocv.ReadNet(a.modelPath, a.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	a.net = net
	a.ready = true
	a.logger.Info("Pose network initialized successfully")
	return nil
}

// Ready reports whether the network was loaded.
func (a *PoseAnalyzer) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

func (a *PoseAnalyzer) Analyze(frame gocv.Mat, posture dto.PostureType) (Analysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ready {
		return Analysis{}, fmt.Errorf("pose network not initialized")
	}

	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(PoseInputSize, PoseInputSize), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	a.net.SetInput(blob, "")
	output := a.net.Forward("")
	defer output.Close()

	kp, err := a.keypoints(output, frame.Cols(), frame.Rows())
	if err != nil {
		return Analysis{}, err
	}

	result := Classify(kp, posture)

	annotated := frame.Clone()
	if err := drawPose(&annotated, kp, result); err != nil {
		annotated.Close()
		return Analysis{}, fmt.Errorf("failed to annotate frame: %w", err)
	}
	result.Annotated = &annotated

	return result, nil
}

// keypoints takes the peak of each part heatmap in the network output
// (shape 1 x parts x H x W) and scales it back to frame coordinates.
func (a *PoseAnalyzer) keypoints(output gocv.Mat, cols, rows int) (Keypoints, error) {
	kp := NewKeypoints()

	size := output.Size()
	if len(size) != 4 {
		return kp, fmt.Errorf("unexpected pose output shape %v", size)
	}
	parts, h, w := size[1], size[2], size[3]
	if parts > NumKeypoints {
		parts = NumKeypoints // trailing background map
	}

	for i := 0; i < parts; i++ {
		heatmap, err := output.FromPtr(h, w, gocv.MatTypeCV32F, 0, i)
		if err != nil {
			return kp, fmt.Errorf("failed to read heatmap %d: %w", i, err)
		}
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(heatmap)
		heatmap.Close()

		if maxVal > a.confidence {
			kp[i] = image.Pt(maxLoc.X*cols/w, maxLoc.Y*rows/h)
		}
	}

	return kp, nil
}

// drawPose draws the skeleton, joints and a status line onto img.
func drawPose(img *gocv.Mat, kp Keypoints, result Analysis) error {
	limb := colorGood
	status := "Good posture"
	if result.IsGoodPosture == nil || !*result.IsGoodPosture {
		limb = colorBad
		status = "Bad posture"
	}

	for _, pair := range skeleton {
		if !kp.Has(pair[0]) || !kp.Has(pair[1]) {
			continue
		}
		if err := gocv.Line(img, kp[pair[0]], kp[pair[1]], limb, 2); err != nil {
			return err
		}
	}

	for i := range kp {
		if !kp.Has(i) {
			continue
		}
		if err := gocv.Circle(img, kp[i], 4, colorJoint, -1); err != nil {
			return err
		}
	}

	if err := gocv.PutText(img, status, image.Pt(10, 25), gocv.FontHersheySimplex, 0.7, limb, 2); err != nil {
		return err
	}
	for i, issue := range result.Issues {
		pt := image.Pt(10, 50+i*22)
		if err := gocv.PutText(img, issue, pt, gocv.FontHersheySimplex, 0.55, colorStatus, 1); err != nil {
			return err
		}
	}

	return nil
}

func (a *PoseAnalyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready {
		return nil
	}
	a.ready = false
	return a.net.Close()
}
