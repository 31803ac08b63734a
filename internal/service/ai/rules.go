package ai

import (
	"image"
	"math"

	"postureserver/internal/dto"
)

// COCO body parts as emitted by the OpenPose COCO model.
const (
	Nose = iota
	Neck
	RShoulder
	RElbow
	RWrist
	LShoulder
	LElbow
	LWrist
	RHip
	RKnee
	RAnkle
	LHip
	LKnee
	LAnkle
	REye
	LEye
	REar
	LEar

	NumKeypoints
)

// Keypoints holds one image position per body part; missing parts are (-1, -1).
type Keypoints [NumKeypoints]image.Point

// NewKeypoints returns a set with every part missing.
func NewKeypoints() Keypoints {
	var kp Keypoints
	for i := range kp {
		kp[i] = image.Pt(-1, -1)
	}
	return kp
}

func (kp Keypoints) Has(part int) bool {
	return kp[part].X >= 0 && kp[part].Y >= 0
}

// Thresholds for one posture type, in degrees.
type Rules struct {
	MaxNeckInclination  float64
	MaxTorsoInclination float64
	MaxShoulderTilt     float64
	MinKneeAngle        float64 // zero disables the knee check
}

var postureRules = map[dto.PostureType]Rules{
	dto.PostureSitting: {
		MaxNeckInclination:  40,
		MaxTorsoInclination: 10,
		MaxShoulderTilt:     10,
	},
	dto.PostureStanding: {
		MaxNeckInclination:  30,
		MaxTorsoInclination: 10,
		MaxShoulderTilt:     10,
		MinKneeAngle:        160,
	},
}

// Issue messages.
const (
	IssueNoPerson     = "No person detected"
	IssueHeadForward  = "Head tilted forward"
	IssueLeaning      = "Torso leaning away from upright"
	IssueShoulders    = "Uneven shoulders"
	IssueKneesBent    = "Knees bent"
	IssueSideNotFound = "Could not see ear, shoulder and hip on the same side"
)

type side struct {
	ear, shoulder, hip, knee, ankle int
}

var (
	leftSide  = side{LEar, LShoulder, LHip, LKnee, LAnkle}
	rightSide = side{REar, RShoulder, RHip, RKnee, RAnkle}
)

// Classify applies the rule-set of posture to the detected keypoints.
func Classify(kp Keypoints, posture dto.PostureType) Analysis {
	rules, ok := postureRules[posture]
	if !ok {
		rules = postureRules[dto.DefaultPostureType]
	}

	result := Analysis{
		PostureType: posture,
		Issues:      []string{},
		Angles:      map[string]float64{},
	}

	s, visible := pickSide(kp)
	if visible == 0 {
		result.IsGoodPosture = boolPtr(false)
		result.Issues = append(result.Issues, IssueNoPerson)
		result.Angles = nil
		return result
	}
	result.LandmarksDetected = true

	if kp.Has(s.ear) && kp.Has(s.shoulder) {
		neck := inclination(kp[s.shoulder], kp[s.ear])
		result.Angles["neck_inclination"] = round1(neck)
		if neck > rules.MaxNeckInclination {
			result.Issues = append(result.Issues, IssueHeadForward)
		}
	}

	if kp.Has(s.shoulder) && kp.Has(s.hip) {
		torso := inclination(kp[s.hip], kp[s.shoulder])
		result.Angles["torso_inclination"] = round1(torso)
		if torso > rules.MaxTorsoInclination {
			result.Issues = append(result.Issues, IssueLeaning)
		}
	}

	if kp.Has(LShoulder) && kp.Has(RShoulder) {
		tilt := tiltFromHorizontal(kp[LShoulder], kp[RShoulder])
		result.Angles["shoulder_tilt"] = round1(tilt)
		if tilt > rules.MaxShoulderTilt {
			result.Issues = append(result.Issues, IssueShoulders)
		}
	}

	if rules.MinKneeAngle > 0 && kp.Has(s.hip) && kp.Has(s.knee) && kp.Has(s.ankle) {
		if knee, ok := jointAngle(kp[s.hip], kp[s.knee], kp[s.ankle]); ok {
			result.Angles["knee_angle"] = round1(knee)
			if knee < rules.MinKneeAngle {
				result.Issues = append(result.Issues, IssueKneesBent)
			}
		}
	}

	_, hasNeck := result.Angles["neck_inclination"]
	_, hasTorso := result.Angles["torso_inclination"]
	if !hasNeck && !hasTorso {
		result.Issues = append(result.Issues, IssueSideNotFound)
	}

	good := len(result.Issues) == 0
	result.IsGoodPosture = &good
	if len(result.Angles) == 0 {
		result.Angles = nil
	}
	return result
}

// pickSide returns the body side with more of ear/shoulder/hip visible, and that count.
func pickSide(kp Keypoints) (side, int) {
	count := func(s side) int {
		n := 0
		for _, p := range []int{s.ear, s.shoulder, s.hip} {
			if kp.Has(p) {
				n++
			}
		}
		return n
	}
	l, r := count(leftSide), count(rightSide)
	if r > l {
		return rightSide, r
	}
	return leftSide, l
}

// inclination is the angle in degrees between the vector lower→upper and the
// image's upward vertical. Image y grows downwards.
func inclination(lower, upper image.Point) float64 {
	dx := math.Abs(float64(upper.X - lower.X))
	dy := float64(lower.Y - upper.Y)
	if dx == 0 && dy == 0 {
		return 0
	}
	return math.Atan2(dx, dy) * 180 / math.Pi
}

func tiltFromHorizontal(a, b image.Point) float64 {
	dx := math.Abs(float64(b.X - a.X))
	dy := math.Abs(float64(b.Y - a.Y))
	if dx == 0 && dy == 0 {
		return 0
	}
	return math.Atan2(dy, dx) * 180 / math.Pi
}

// jointAngle is the angle at b formed by a-b-c, in degrees.
func jointAngle(a, b, c image.Point) (float64, bool) {
	bax, bay := float64(a.X-b.X), float64(a.Y-b.Y)
	bcx, bcy := float64(c.X-b.X), float64(c.Y-b.Y)
	na := math.Hypot(bax, bay)
	nc := math.Hypot(bcx, bcy)
	if na == 0 || nc == 0 {
		return 0, false
	}
	cos := (bax*bcx + bay*bcy) / (na * nc)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi, true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
