// Package detector provides the hand-pose detector collaborator and its landmark types.
package detector

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Handedness labels reported by the model.
const (
	HandLeft  = "Left"
	HandRight = "Right"
)

// FingerTips lists the tip landmark of each digit, thumb first.
var FingerTips = [5]int{ThumbTip, IndexTip, MiddleTip, RingTip, PinkyTip}

// Point3D is a normalized landmark position. X and Y are in [0,1] image
// coordinates with Y growing downward.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks holds the 21 keypoints of one detected hand.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Label returns the handedness, defaulting to "Right" when the model did not report one.
func (h *HandLandmarks) Label() string {
	if h == nil || h.Handedness == "" {
		return HandRight
	}
	return h.Handedness
}

// Result is one detector answer for one submitted frame.
type Result struct {
	Hands     []HandLandmarks `json:"hands"`
	Timestamp int64           `json:"timestamp"`
}

// First returns the first detected hand, or false when no hand is in the frame.
func (r Result) First() (*HandLandmarks, bool) {
	if len(r.Hands) == 0 {
		return nil, false
	}
	return &r.Hands[0], true
}
