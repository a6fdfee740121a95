// Package session runs the hand-gesture capture session: it owns the camera
// and the hand detector while open, drives the gesture sequence and captures
// exactly one photo.
package session

import (
	"context"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/handcapture/internal/capture"
	"github.com/ayusman/handcapture/internal/detector"
)

// RuntimeLoader loads the detector runtime.
type RuntimeLoader interface {
	Load(ctx context.Context) (detector.Runtime, error)
}

// Deps are the collaborators a session acquires when it opens.
type Deps struct {
	Loader      RuntimeLoader
	NewDetector detector.Factory
	NewCamera   func() capture.Camera
}

// Callbacks receive session results. They run on the session loop and may
// call back into the Controller, including Close.
type Callbacks struct {
	// OnPhotoCaptured receives the photo. Ownership passes to the callee.
	OnPhotoCaptured func(sessionID string, photo capture.Photo)
	// OnClose is called right after a photo has been delivered.
	OnClose func()
	// OnChange receives every snapshot change.
	OnChange func(Snapshot)
	// OnLandmarks receives every detector result. It runs on the detection
	// worker and must not block.
	OnLandmarks func(sessionID string, r detector.Result)
}

// Controller opens and closes capture sessions. At most one session, and
// so at most one camera and detector, exists at a time.
type Controller struct {
	cfg       Config
	deps      Deps
	callbacks Callbacks

	mu      sync.Mutex
	current *session
	last    Snapshot
}

// NewController creates a closed Controller.
func NewController(cfg Config, deps Deps, callbacks Callbacks) *Controller {
	return &Controller{
		cfg:       cfg,
		deps:      deps,
		callbacks: callbacks,
		last:      closedSnapshot(),
	}
}

// SetOpen opens or closes the session.
func (c *Controller) SetOpen(open bool) {
	if open {
		c.Open()
		return
	}
	c.Close()
}

// Open starts a session and returns its id. An active session is kept as
// is; a failed one is replaced.
func (c *Controller) Open() string {
	c.mu.Lock()
	if c.current != nil {
		if c.current.snapshot().CameraError == "" {
			id := c.current.id
			c.mu.Unlock()
			return id
		}
		c.current.teardown()
		c.current = nil
	}

	s := newSession(c.cfg, c.deps, c.callbacks)
	c.current = s
	snap := s.snapshot()
	c.mu.Unlock()

	c.notify(snap)
	s.start()
	return s.id
}

// Close tears the session down. It is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	s := c.current
	if s == nil {
		c.mu.Unlock()
		return
	}
	c.current = nil
	s.teardown()
	snap := s.snapshot()
	c.last = snap
	c.mu.Unlock()

	c.notify(snap)
}

// IsOpen reports whether a session is open.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Snapshot returns the state of the open session, or of the last one.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := c.current
	last := c.last
	c.mu.Unlock()

	if s == nil {
		return last
	}
	return s.snapshot()
}

// Frame returns a copy of the latest camera frame, or nil when none is
// available. The caller must close it.
func (c *Controller) Frame() *gocv.Mat {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.frame()
}

func (c *Controller) notify(snap Snapshot) {
	if c.callbacks.OnChange != nil {
		c.callbacks.OnChange(snap)
	}
}

// Hands returns the hands found in the latest analyzed frame.
func (c *Controller) Hands() []detector.HandLandmarks {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.landmarks()
}
