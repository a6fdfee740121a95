package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/ayusman/handcapture/internal/capture"
	"github.com/ayusman/handcapture/internal/detector"
	"github.com/ayusman/handcapture/internal/gesture"
)

type eventKind int

const (
	evObservation eventKind = iota
	evReady
	evFailed
)

type event struct {
	kind  eventKind
	count gesture.FingerCount
	err   *Error
}

// session is one open/close cycle. Its context is the liveness token: once
// cancelled no continuation may touch state.
type session struct {
	id        string
	cfg       Config
	deps      Deps
	callbacks Callbacks
	lifecycle *lifecycle

	ctx    context.Context
	cancel context.CancelFunc
	events chan event
	frames chan *gocv.Mat

	// Owned by the loop goroutine.
	seq    gesture.Sequence
	hold   *time.Timer
	holdC  <-chan time.Time
	holdID uint64
	ticker *time.Ticker
	tickC  <-chan time.Time

	snapMu    sync.Mutex
	snap      Snapshot
	published Snapshot

	resMu   sync.Mutex
	closed  bool
	det     detector.PoseDetector
	cam     capture.Camera
	workers sync.WaitGroup

	frameMu sync.Mutex
	latest  *gocv.Mat
	hands   []detector.HandLandmarks

	teardownOnce sync.Once
}

func newSession(cfg Config, deps Deps, callbacks Callbacks) *session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &session{
		id:        id,
		cfg:       cfg,
		deps:      deps,
		callbacks: callbacks,
		lifecycle: newLifecycle(id),
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan event, 16),
		frames:    make(chan *gocv.Mat, 1),
		seq:       gesture.NewSequence(),
		snap: Snapshot{
			ID:          id,
			Open:        true,
			Loading:     true,
			FingerCount: gesture.NoHand,
			Status:      StatusLoading,
		},
	}
}

func (s *session) start() {
	go s.run()
	go s.initialize()
}

// post delivers an event to the loop unless the session is gone.
func (s *session) post(ev event) {
	select {
	case <-s.ctx.Done():
	case s.events <- ev:
	}
}

func (s *session) fail(kind, err error) {
	s.post(event{kind: evFailed, err: &Error{Kind: kind, Err: err}})
}

// initialize acquires the detector and the camera, then starts the workers.
func (s *session) initialize() {
	rt, err := s.deps.Loader.Load(s.ctx)
	if err != nil {
		s.fail(ErrInitialization, err)
		return
	}

	det, err := s.deps.NewDetector(rt)
	if err != nil {
		s.fail(ErrInitialization, err)
		return
	}
	if err := det.Configure(s.cfg.Detector); err != nil {
		det.Close()
		s.fail(ErrInitialization, err)
		return
	}
	det.OnResult(s.onResult)
	if !s.adoptDetector(det) {
		return
	}

	cam := s.deps.NewCamera()
	if err := cam.Open(); err != nil {
		cam.Close()
		s.fail(ErrPermission, err)
		return
	}
	if !s.adoptCamera(cam) {
		return
	}

	if err := s.waitReady(cam); err != nil {
		if s.ctx.Err() == nil {
			s.fail(ErrTimeout, err)
		}
		return
	}

	if err := cam.Play(); err != nil {
		s.fail(ErrPlayback, err)
		return
	}

	s.post(event{kind: evReady})
	s.startWorkers(det, cam)
}

func (s *session) adoptDetector(det detector.PoseDetector) bool {
	s.resMu.Lock()
	if s.closed {
		s.resMu.Unlock()
		det.Close()
		return false
	}
	s.det = det
	s.resMu.Unlock()
	return true
}

func (s *session) adoptCamera(cam capture.Camera) bool {
	s.resMu.Lock()
	if s.closed {
		s.resMu.Unlock()
		cam.Close()
		return false
	}
	s.cam = cam
	s.resMu.Unlock()
	return true
}

// waitReady polls until the camera reports its frame size.
func (s *session) waitReady(cam capture.Camera) error {
	if cam.Ready() {
		return nil
	}

	timeout := time.NewTimer(s.cfg.ReadyTimeout)
	defer timeout.Stop()
	poll := time.NewTicker(s.cfg.ReadyPoll)
	defer poll.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case <-timeout.C:
			return context.DeadlineExceeded
		case <-poll.C:
			if cam.Ready() {
				return nil
			}
		}
	}
}

func (s *session) startWorkers(det detector.PoseDetector, cam capture.Camera) {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	if s.closed {
		return
	}
	s.workers.Add(2)
	go s.render(cam)
	go s.detect(det)
}

// render reads one frame per display interval and hands it to the detector.
func (s *session) render(cam capture.Camera) {
	defer s.workers.Done()

	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			frame, err := cam.ReadFrame()
			if err != nil {
				log.Printf("Error reading frame: %v", err)
				continue
			}
			s.setLatest(frame)

			select {
			case s.frames <- frame:
			default:
				// Detector still busy with the previous frame.
				frame.Close()
			}
		}
	}
}

func (s *session) detect(det detector.PoseDetector) {
	defer s.workers.Done()

	for {
		select {
		case <-s.ctx.Done():
			s.drainFrames()
			return
		case frame := <-s.frames:
			if err := det.Submit(s.ctx, frame); err != nil && s.ctx.Err() == nil {
				log.Printf("Error detecting hands: %v", err)
			}
			frame.Close()
		}
	}
}

func (s *session) drainFrames() {
	for {
		select {
		case frame := <-s.frames:
			frame.Close()
		default:
			return
		}
	}
}

func (s *session) onResult(r detector.Result) {
	if s.ctx.Err() != nil {
		return
	}
	s.frameMu.Lock()
	s.hands = r.Hands
	s.frameMu.Unlock()

	if s.callbacks.OnLandmarks != nil {
		s.callbacks.OnLandmarks(s.id, r)
	}
	s.post(event{kind: evObservation, count: gesture.Observe(r)})
}

// landmarks returns the hands of the latest detector result.
func (s *session) landmarks() []detector.HandLandmarks {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	return append([]detector.HandLandmarks(nil), s.hands...)
}

func (s *session) setLatest(frame *gocv.Mat) {
	clone := frame.Clone()
	s.frameMu.Lock()
	if s.latest != nil {
		s.latest.Close()
	}
	s.latest = &clone
	s.frameMu.Unlock()
}

// frame returns a copy of the latest frame, or nil. The caller must close it.
func (s *session) frame() *gocv.Mat {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if s.latest == nil {
		return nil
	}
	clone := s.latest.Clone()
	return &clone
}

// run is the session loop. It owns the sequence and its timers.
func (s *session) run() {
	defer s.stopHold()
	defer s.stopCountdown()

	for {
		var effects []gesture.Effect

		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			effects = s.handle(ev)
		case <-s.holdC:
			s.holdC = nil
			s.seq, effects = s.seq.HoldElapsed(s.holdID)
		case <-s.tickC:
			s.seq, effects = s.seq.Tick()
		}

		due := s.apply(effects)
		s.publish(nil)
		if due {
			s.capture()
		}
	}
}

func (s *session) handle(ev event) []gesture.Effect {
	switch ev.kind {
	case evReady:
		s.lifecycle.fire(eventReady)
		s.update(func(snap *Snapshot) {
			snap.Loading = false
		})

	case evFailed:
		set := false
		s.update(func(snap *Snapshot) {
			if snap.CameraError != "" {
				return
			}
			snap.CameraError = ev.err.Error()
			snap.Loading = false
			set = true
		})
		if set {
			log.Printf("Capture session %s failed: %v", s.id, ev.err)
			s.lifecycle.fire(eventFail)
		}

	case evObservation:
		snap := s.snapshot()
		if snap.Loading || snap.CameraError != "" {
			return nil
		}
		var effects []gesture.Effect
		s.seq, effects = s.seq.Observe(ev.count)
		return effects
	}
	return nil
}

// apply runs timer effects and reports whether a capture is due.
func (s *session) apply(effects []gesture.Effect) bool {
	due := false
	for _, e := range effects {
		switch e.Kind {
		case gesture.EffectStartHold:
			s.stopHold()
			s.hold = time.NewTimer(s.cfg.HoldDuration)
			s.holdC = s.hold.C
			s.holdID = e.Timer
		case gesture.EffectCancelHold:
			if e.Timer == s.holdID {
				s.stopHold()
			}
		case gesture.EffectStartCountdown:
			s.stopCountdown()
			s.ticker = time.NewTicker(s.cfg.TickInterval)
			s.tickC = s.ticker.C
		case gesture.EffectStopCountdown:
			s.stopCountdown()
		case gesture.EffectCapture:
			due = true
		}
	}
	return due
}

func (s *session) stopHold() {
	if s.hold != nil {
		s.hold.Stop()
	}
	s.hold = nil
	s.holdC = nil
	s.holdID = 0
}

func (s *session) stopCountdown() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.ticker = nil
	s.tickC = nil
}

// capture grabs the current frame and completes the session.
func (s *session) capture() {
	frame := s.frame()
	var (
		photo capture.Photo
		err   error
	)
	if frame == nil {
		err = capture.ErrEmptyFrame
	} else {
		photo, err = capture.EncodePhoto(frame, s.cfg.Mirror)
		frame.Close()
	}

	if err != nil {
		log.Printf("Capture session %s: capture failed: %v", s.id, err)
		s.lifecycle.fire(eventFail)
		s.publish(func(snap *Snapshot) {
			snap.CameraError = (&Error{Kind: ErrCapture, Err: err}).Error()
		})
		return
	}

	s.lifecycle.fire(eventCapture)
	s.publish(nil)

	if s.ctx.Err() != nil {
		return
	}
	log.Printf("Capture session %s: photo captured (%d bytes)", s.id, len(photo.Data))
	if s.callbacks.OnPhotoCaptured != nil {
		s.callbacks.OnPhotoCaptured(s.id, photo)
	}
	if s.callbacks.OnClose != nil {
		s.callbacks.OnClose()
	}
}

// update mutates the snapshot unless the session is gone.
func (s *session) update(fn func(*Snapshot)) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	fn(&s.snap)
}

// publish refreshes the sequence fields and notifies the listener when
// anything changed.
func (s *session) publish(fn func(*Snapshot)) {
	s.snapMu.Lock()
	if s.ctx.Err() != nil {
		s.snapMu.Unlock()
		return
	}
	prev := s.published
	if fn != nil {
		fn(&s.snap)
	}
	s.snap.CurrentStep = s.seq.Step()
	s.snap.CountingDown = s.seq.CountingDown()
	s.snap.Countdown = s.seq.Countdown()
	s.snap.FingerCount = s.seq.Last()
	s.snap.Status = s.lifecycle.current()
	snap := s.snap
	s.published = snap
	s.snapMu.Unlock()

	if snap != prev && s.callbacks.OnChange != nil {
		s.callbacks.OnChange(snap)
	}
}

func (s *session) snapshot() Snapshot {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.snap
}

// teardown releases every resource. It does not wait for the loop, so it
// may run from inside a callback.
func (s *session) teardown() {
	s.teardownOnce.Do(func() {
		s.cancel()

		s.resMu.Lock()
		s.closed = true
		det, cam := s.det, s.cam
		s.resMu.Unlock()

		// Closing the detector first unblocks a detect worker stuck in Submit.
		if det != nil {
			if err := det.Close(); err != nil {
				log.Printf("Error closing detector: %v", err)
			}
		}

		s.workers.Wait()
		s.drainFrames()

		if cam != nil {
			if err := cam.Close(); err != nil {
				log.Printf("Error closing camera: %v", err)
			}
		}

		s.frameMu.Lock()
		if s.latest != nil {
			s.latest.Close()
			s.latest = nil
		}
		s.hands = nil
		s.frameMu.Unlock()

		s.lifecycle.fire(eventClose)

		s.snapMu.Lock()
		s.snap.Open = false
		s.snap.Loading = false
		s.snap.CountingDown = false
		s.snap.Status = s.lifecycle.current()
		s.snapMu.Unlock()

		log.Printf("Capture session %s closed", s.id)
	})
}
