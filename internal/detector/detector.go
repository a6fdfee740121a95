package detector

import (
	"context"
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrClosed is returned when submitting to a detector that has been released.
var ErrClosed = errors.New("detector is closed")

// PoseDetector is the hand-pose model. Results are delivered through the
// OnResult callback, not necessarily one per submitted frame.
type PoseDetector interface {
	// Configure sets the model options. It must be called before the first Submit.
	Configure(cfg Config) error

	// OnResult registers the callback receiving detection results.
	OnResult(fn func(Result))

	// Submit analyzes one video frame. The frame is only borrowed for the call.
	Submit(ctx context.Context, frame *gocv.Mat) error

	// Close releases the model. It is safe to call more than once.
	Close() error
}

// Factory builds a detector from a loaded runtime.
type Factory func(rt Runtime) (PoseDetector, error)

// Config holds the model options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to track.
	MaxHands int `json:"max_hands"`

	// ModelComplexity selects the landmark model (0 = lite, 1 = full).
	ModelComplexity int `json:"model_complexity"`

	// MinDetectionConfidence is the palm detection threshold (0.0-1.0).
	MinDetectionConfidence float64 `json:"min_detection_confidence"`

	// MinTrackingConfidence is the landmark tracking threshold (0.0-1.0).
	MinTrackingConfidence float64 `json:"min_tracking_confidence"`
}

// DefaultConfig returns the single-hand configuration used by capture sessions.
func DefaultConfig() Config {
	return Config{
		MaxHands:               1,
		ModelComplexity:        1,
		MinDetectionConfidence: 0.6,
		MinTrackingConfidence:  0.5,
	}
}

// Validate reports whether the options are in range.
func (c Config) Validate() error {
	if c.MaxHands < 1 {
		return fmt.Errorf("max hands must be positive, got %d", c.MaxHands)
	}
	if c.ModelComplexity < 0 || c.ModelComplexity > 1 {
		return fmt.Errorf("model complexity must be 0 or 1, got %d", c.ModelComplexity)
	}
	if c.MinDetectionConfidence < 0 || c.MinDetectionConfidence > 1 {
		return fmt.Errorf("min detection confidence out of range: %v", c.MinDetectionConfidence)
	}
	if c.MinTrackingConfidence < 0 || c.MinTrackingConfidence > 1 {
		return fmt.Errorf("min tracking confidence out of range: %v", c.MinTrackingConfidence)
	}
	return nil
}
