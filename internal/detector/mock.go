package detector

import (
	"context"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the PoseDetector interface.
// Every submitted frame is answered with the currently configured hands.
type MockDetector struct {
	mu          sync.Mutex
	hands       []HandLandmarks
	err         error
	config      Config
	configured  bool
	configErr   error
	onResult    func(Result)
	submissions int
	closed      bool
	closeCalls  int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands reported for subsequent frames. Nil means no hand in view.
func (m *MockDetector) SetHands(hands ...HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error returned by Submit.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetConfigureError makes Configure fail.
func (m *MockDetector) SetConfigureError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configErr = err
}

// Configure records the configuration.
func (m *MockDetector) Configure(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.configErr != nil {
		return m.configErr
	}
	m.config = cfg
	m.configured = true
	return nil
}

// OnResult registers the result callback.
func (m *MockDetector) OnResult(fn func(Result)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onResult = fn
}

// Submit answers the frame with the configured hands or error.
func (m *MockDetector) Submit(ctx context.Context, frame *gocv.Mat) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.submissions++
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return err
	}
	result := Result{
		Hands:     append([]HandLandmarks(nil), m.hands...),
		Timestamp: time.Now().UnixMilli(),
	}
	callback := m.onResult
	m.mu.Unlock()

	if callback != nil && ctx.Err() == nil {
		callback(result)
	}
	return nil
}

// Close marks the detector as released.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closeCalls++
	return nil
}

// Config returns the last applied configuration and whether Configure succeeded.
func (m *MockDetector) Config() (Config, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config, m.configured
}

// Submissions returns how many frames were submitted.
func (m *MockDetector) Submissions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submissions
}

// Closed reports whether Close has been called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CloseCalls returns how many times Close has been called.
func (m *MockDetector) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// PoseLandmarks builds a hand with the given digits extended, thumb first.
// Right hands extend the thumb toward smaller X; Left hands are mirrored.
func PoseLandmarks(handedness string, extended [5]bool) HandLandmarks {
	landmarks := HandLandmarks{
		Handedness: handedness,
		Score:      0.95,
	}

	landmarks.Points[Wrist] = Point3D{X: 0.5, Y: 0.8}

	// Thumb runs sideways from the wrist.
	landmarks.Points[ThumbCMC] = Point3D{X: 0.45, Y: 0.75}
	landmarks.Points[ThumbMCP] = Point3D{X: 0.40, Y: 0.70}
	if extended[0] {
		landmarks.Points[ThumbIP] = Point3D{X: 0.35, Y: 0.66}
		landmarks.Points[ThumbTip] = Point3D{X: 0.30, Y: 0.62}
	} else {
		landmarks.Points[ThumbIP] = Point3D{X: 0.43, Y: 0.66, Z: -0.03}
		landmarks.Points[ThumbTip] = Point3D{X: 0.47, Y: 0.65, Z: -0.04}
	}

	// Index, middle, ring and pinky stand side by side.
	for finger := 1; finger < 5; finger++ {
		x := 0.40 + 0.05*float64(finger)
		mcp := FingerTips[finger] - 3

		landmarks.Points[mcp] = Point3D{X: x, Y: 0.68}
		if extended[finger] {
			landmarks.Points[mcp+1] = Point3D{X: x, Y: 0.55}
			landmarks.Points[mcp+2] = Point3D{X: x, Y: 0.45}
			landmarks.Points[mcp+3] = Point3D{X: x, Y: 0.35}
		} else {
			landmarks.Points[mcp+1] = Point3D{X: x, Y: 0.62, Z: -0.05}
			landmarks.Points[mcp+2] = Point3D{X: x, Y: 0.66, Z: -0.04}
			landmarks.Points[mcp+3] = Point3D{X: x, Y: 0.70, Z: -0.02}
		}
	}

	if handedness == HandLeft {
		for i := range landmarks.Points {
			landmarks.Points[i].X = 1 - landmarks.Points[i].X
		}
	}

	return landmarks
}

// FingersLandmarks returns a right hand showing n fingers, raised index first
// and the thumb last.
func FingersLandmarks(n int) HandLandmarks {
	var extended [5]bool
	order := []int{1, 2, 3, 4, 0}
	for i := 0; i < n && i < len(order); i++ {
		extended[order[i]] = true
	}
	return PoseLandmarks(HandRight, extended)
}

// ThumbsUpLandmarks returns a right hand with only the thumb extended.
func ThumbsUpLandmarks() HandLandmarks {
	return PoseLandmarks(HandRight, [5]bool{true, false, false, false, false})
}

// FistLandmarks returns a right hand with every digit curled.
func FistLandmarks() HandLandmarks {
	return PoseLandmarks(HandRight, [5]bool{})
}

// OpenPalmLandmarks returns a right hand with all five digits extended.
func OpenPalmLandmarks() HandLandmarks {
	return PoseLandmarks(HandRight, [5]bool{true, true, true, true, true})
}
