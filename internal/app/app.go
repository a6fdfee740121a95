// Package app wires the capture session to storage, photo hooks and the
// user-facing surfaces.
package app

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/handcapture/internal/capture"
	"github.com/ayusman/handcapture/internal/detector"
	"github.com/ayusman/handcapture/internal/hook"
	"github.com/ayusman/handcapture/internal/session"
	"github.com/ayusman/handcapture/internal/store"
)

const (
	// DefaultHookTimeout bounds a single hook execution.
	DefaultHookTimeout = 10 * time.Second
	// maxParallelHooks limits concurrent hook processes per photo.
	maxParallelHooks = 4
)

// Config holds configuration options for the application.
type Config struct {
	Store       *store.Store
	HookDir     string
	HookTimeout time.Duration
	CameraID    int
	Session     session.Config

	// Deps overrides the camera and detector used by sessions. Zero fields
	// fall back to the MediaPipe detector and the device camera.
	Deps session.Deps
}

// App owns the capture controller and reacts to its results.
type App struct {
	config     Config
	controller *session.Controller
	hookMgr    *hook.Manager
	hookExec   *hook.Executor

	mu           sync.Mutex
	subscribers  []func(session.Snapshot)
	landmarkSubs []func(string, detector.Result)
	journal      journalEntry
	finished     string
	shuttingDown bool

	hooks sync.WaitGroup
}

// journalEntry is the session currently being recorded in the store.
type journalEntry struct {
	id     string
	status string
	err    string
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.HookTimeout <= 0 {
		config.HookTimeout = DefaultHookTimeout
	}

	deps := config.Deps
	if deps.Loader == nil {
		deps.Loader = detector.DefaultLoader()
	}
	if deps.NewDetector == nil {
		deps.NewDetector = detector.NewMediaPipeFactory()
	}
	if deps.NewCamera == nil {
		id, w, h := config.CameraID, config.Session.Width, config.Session.Height
		deps.NewCamera = func() capture.Camera {
			return capture.NewCamera(id, w, h)
		}
	}

	a := &App{
		config:   config,
		hookMgr:  hook.NewManager(config.HookDir),
		hookExec: hook.NewExecutor(config.HookTimeout),
	}

	a.controller = session.NewController(config.Session, deps, session.Callbacks{
		OnPhotoCaptured: a.handlePhoto,
		OnClose:         a.Close,
		OnChange:        a.handleChange,
		OnLandmarks:     a.handleLandmarks,
	})

	return a
}

// DiscoverHooks scans the hook directory for photo hooks.
func (a *App) DiscoverHooks() error {
	if err := a.hookMgr.Discover(); err != nil {
		return err
	}
	log.Printf("Loaded %d photo hooks from %s", len(a.hookMgr.List()), a.hookMgr.HookDir())
	return nil
}

// Subscribe registers fn to receive every session snapshot change.
func (a *App) Subscribe(fn func(session.Snapshot)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscribers = append(a.subscribers, fn)
}

// SubscribeLandmarks registers fn to receive every detector result. fn runs
// on the detection worker and must not block.
func (a *App) SubscribeLandmarks(fn func(sessionID string, r detector.Result)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.landmarkSubs = append(a.landmarkSubs, fn)
}

// Open starts a capture session and returns its id.
func (a *App) Open() string {
	return a.controller.Open()
}

// Close ends the capture session.
func (a *App) Close() {
	a.controller.Close()
}

// SetOpen opens or closes the capture session.
func (a *App) SetOpen(open bool) {
	a.controller.SetOpen(open)
}

// IsOpen reports whether a capture session is open.
func (a *App) IsOpen() bool {
	return a.controller.IsOpen()
}

// Snapshot returns the current session state.
func (a *App) Snapshot() session.Snapshot {
	return a.controller.Snapshot()
}

// Frame returns a copy of the latest camera frame or nil. The caller must
// close it.
func (a *App) Frame() *gocv.Mat {
	return a.controller.Frame()
}

// Hands returns the hands found in the latest analyzed frame.
func (a *App) Hands() []detector.HandLandmarks {
	return a.controller.Hands()
}

// Shutdown closes the session and waits for running hooks. Photos
// delivered afterwards are stored but not handed to hooks.
func (a *App) Shutdown() {
	a.controller.Close()

	a.mu.Lock()
	a.shuttingDown = true
	a.mu.Unlock()

	a.hooks.Wait()
}

// HookManager returns the hook manager.
func (a *App) HookManager() *hook.Manager {
	return a.hookMgr
}

// handleChange journals the session and fans the snapshot out.
func (a *App) handleChange(snap session.Snapshot) {
	a.mu.Lock()
	a.record(snap)
	subscribers := append([]func(session.Snapshot){}, a.subscribers...)
	a.mu.Unlock()

	for _, fn := range subscribers {
		fn(snap)
	}
}

func (a *App) handleLandmarks(sessionID string, r detector.Result) {
	a.mu.Lock()
	subscribers := append([]func(string, detector.Result){}, a.landmarkSubs...)
	a.mu.Unlock()

	for _, fn := range subscribers {
		fn(sessionID, r)
	}
}

// record must be called with a.mu held.
func (a *App) record(snap session.Snapshot) {
	if a.config.Store == nil || snap.ID == "" || snap.ID == a.finished {
		return
	}
	sessions := a.config.Store.Sessions()

	if snap.ID != a.journal.id {
		if a.journal.id != "" {
			a.finish()
		}
		if _, err := sessions.Open(snap.ID, snap.Status); err != nil {
			log.Printf("Error journaling session %s: %v", snap.ID, err)
		}
		a.journal = journalEntry{id: snap.ID, status: snap.Status}
	}

	if !snap.Open {
		a.journal.err = snap.CameraError
		a.finish()
		return
	}

	if snap.Status == a.journal.status && snap.CameraError == a.journal.err {
		return
	}
	a.journal.status = snap.Status
	a.journal.err = snap.CameraError
	if err := sessions.Update(snap.ID, snap.Status, snap.CameraError); err != nil {
		log.Printf("Error journaling session %s: %v", snap.ID, err)
	}
}

// finish must be called with a.mu held.
func (a *App) finish() {
	status := a.journal.status
	if status != session.StatusCaptured && status != session.StatusFailed {
		status = session.StatusClosed
	}
	if err := a.config.Store.Sessions().Finish(a.journal.id, status, a.journal.err); err != nil {
		log.Printf("Error journaling session %s: %v", a.journal.id, err)
	}
	a.finished = a.journal.id
	a.journal = journalEntry{}
}

// handlePhoto stores the captured photo and hands it to the photo hooks.
func (a *App) handlePhoto(sessionID string, photo capture.Photo) {
	p := &store.Photo{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		MIMEType:  photo.MIMEType,
		Width:     photo.Width,
		Height:    photo.Height,
		Data:      photo.Data,
		CreatedAt: photo.CapturedAt,
	}

	if a.config.Store != nil {
		if err := a.config.Store.Photos().Create(p); err != nil {
			log.Printf("Error saving photo: %v", err)
		} else {
			log.Printf("Saved photo %s (%d bytes)", p.ID, len(p.Data))
		}
	}

	hooks := a.hookMgr.ForEvent(hook.EventPhotoCaptured)
	if len(hooks) == 0 {
		return
	}

	a.mu.Lock()
	if a.shuttingDown {
		a.mu.Unlock()
		log.Printf("Shutting down, skipping hooks for photo %s", p.ID)
		return
	}
	a.hooks.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.hooks.Done()
		a.runHooks(context.Background(), hooks, p)
	}()
}

// runHooks writes the photo to a temporary file and runs every hook on it.
func (a *App) runHooks(ctx context.Context, hooks []*hook.Hook, p *store.Photo) {
	f, err := os.CreateTemp("", "handcapture-*.png")
	if err != nil {
		log.Printf("Error writing photo for hooks: %v", err)
		return
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(p.Data); err != nil {
		f.Close()
		log.Printf("Error writing photo for hooks: %v", err)
		return
	}
	if err := f.Close(); err != nil {
		log.Printf("Error writing photo for hooks: %v", err)
		return
	}

	var g errgroup.Group
	g.SetLimit(maxParallelHooks)
	for _, h := range hooks {
		g.Go(func() error {
			req := &hook.Request{
				Event:      hook.EventPhotoCaptured,
				PhotoID:    p.ID,
				SessionID:  p.SessionID,
				Path:       f.Name(),
				MIMEType:   p.MIMEType,
				Width:      p.Width,
				Height:     p.Height,
				CapturedAt: p.CreatedAt,
			}

			resp, err := a.hookExec.Execute(ctx, h, req)
			if err != nil {
				log.Printf("Hook %s failed: %v", h.Manifest.Name, err)
				return nil
			}
			if !resp.Success {
				log.Printf("Hook %s rejected photo %s: %s", h.Manifest.Name, p.ID, resp.Error)
				return nil
			}
			log.Printf("Hook %s handled photo %s", h.Manifest.Name, p.ID)
			return nil
		})
	}
	g.Wait()
}
