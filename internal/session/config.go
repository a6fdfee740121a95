package session

import (
	"time"

	"github.com/ayusman/handcapture/internal/capture"
	"github.com/ayusman/handcapture/internal/detector"
)

// Config holds the timing and device settings of a capture session.
type Config struct {
	// Detector holds the hand model options.
	Detector detector.Config

	// Width and Height are the requested camera resolution.
	Width  int
	Height int

	// FrameInterval is the period of the render loop.
	FrameInterval time.Duration

	// ReadyTimeout bounds the wait for the camera to report its frame size.
	ReadyTimeout time.Duration
	// ReadyPoll is how often readiness is checked.
	ReadyPoll time.Duration

	// HoldDuration is how long three fingers must be held.
	HoldDuration time.Duration
	// TickInterval is the length of one countdown step.
	TickInterval time.Duration

	// Mirror flips the captured photo to match the preview.
	Mirror bool
}

// DefaultConfig returns the production session settings.
func DefaultConfig() Config {
	return Config{
		Detector:      detector.DefaultConfig(),
		Width:         capture.DefaultWidth,
		Height:        capture.DefaultHeight,
		FrameInterval: 33 * time.Millisecond,
		ReadyTimeout:  5 * time.Second,
		ReadyPoll:     50 * time.Millisecond,
		HoldDuration:  time.Second,
		TickInterval:  time.Second,
		Mirror:        true,
	}
}
