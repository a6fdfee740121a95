package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/handcapture/internal/capture"
	"github.com/ayusman/handcapture/internal/detector"
	"github.com/ayusman/handcapture/internal/gesture"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameInterval = 2 * time.Millisecond
	cfg.ReadyTimeout = 100 * time.Millisecond
	cfg.ReadyPoll = 5 * time.Millisecond
	cfg.HoldDuration = 30 * time.Millisecond
	cfg.TickInterval = 10 * time.Millisecond
	return cfg
}

type fakeLoader struct {
	err     error
	release chan struct{}
	calls   atomic.Int32
}

// Load ignores cancellation so a close during loading can be observed.
func (l *fakeLoader) Load(ctx context.Context) (detector.Runtime, error) {
	l.calls.Add(1)
	if l.release != nil {
		<-l.release
	}
	return detector.Runtime{Python: "python3"}, l.err
}

// stallingDetector never answers. Submit blocks until Close, ignoring its
// context like a hung model process.
type stallingDetector struct {
	*detector.MockDetector
	entered   chan struct{}
	enterOnce sync.Once
	release   chan struct{}
	closeOnce sync.Once
}

func newStallingDetector() *stallingDetector {
	return &stallingDetector{
		MockDetector: detector.NewMockDetector(),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (d *stallingDetector) Submit(ctx context.Context, frame *gocv.Mat) error {
	d.enterOnce.Do(func() { close(d.entered) })
	<-d.release
	return detector.ErrClosed
}

func (d *stallingDetector) Close() error {
	d.closeOnce.Do(func() { close(d.release) })
	return d.MockDetector.Close()
}

type harness struct {
	t    *testing.T
	ctrl *Controller

	mu       sync.Mutex
	cams     []*capture.MockCamera
	camCalls int
	dets     []*detector.MockDetector
	detErr   error
	factory  func() detector.PoseDetector
	events   []string
	photos   []capture.Photo
	snaps    []Snapshot
}

func testFrame(t *testing.T) *gocv.Mat {
	t.Helper()
	frame := gocv.NewMatWithSize(capture.DefaultHeight, capture.DefaultWidth, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	return &frame
}

func workingCamera(t *testing.T) *capture.MockCamera {
	return capture.NewMockCamera([]*gocv.Mat{testFrame(t)}, true)
}

// newHarness wires a Controller to mock devices. Each Open takes the next
// camera; each detector is a fresh MockDetector.
func newHarness(t *testing.T, loader RuntimeLoader, cams ...*capture.MockCamera) *harness {
	t.Helper()
	return newHarnessWithConfig(t, testConfig(), loader, cams...)
}

func newHarnessWithConfig(t *testing.T, cfg Config, loader RuntimeLoader, cams ...*capture.MockCamera) *harness {
	t.Helper()
	h := &harness{t: t, cams: cams}

	deps := Deps{
		Loader: loader,
		NewDetector: func(rt detector.Runtime) (detector.PoseDetector, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.detErr != nil {
				return nil, h.detErr
			}
			if h.factory != nil {
				return h.factory(), nil
			}
			det := detector.NewMockDetector()
			h.dets = append(h.dets, det)
			return det, nil
		},
		NewCamera: func() capture.Camera {
			h.mu.Lock()
			defer h.mu.Unlock()
			cam := h.cams[h.camCalls]
			h.camCalls++
			return cam
		},
	}

	h.ctrl = NewController(cfg, deps, Callbacks{
		OnPhotoCaptured: func(sessionID string, photo capture.Photo) {
			h.mu.Lock()
			h.events = append(h.events, "photo")
			h.photos = append(h.photos, photo)
			h.mu.Unlock()
		},
		OnClose: func() {
			h.mu.Lock()
			h.events = append(h.events, "close")
			h.mu.Unlock()
			h.ctrl.Close()
		},
		OnChange: func(snap Snapshot) {
			h.mu.Lock()
			h.snaps = append(h.snaps, snap)
			h.mu.Unlock()
		},
	})
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) detector(i int) *detector.MockDetector {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.dets) {
		return nil
	}
	return h.dets[i]
}

func (h *harness) lastDetector() *detector.MockDetector {
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(h.t, h.dets)
	return h.dets[len(h.dets)-1]
}

func (h *harness) show(hands ...detector.HandLandmarks) {
	h.lastDetector().SetHands(hands...)
}

func (h *harness) recorded() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func (h *harness) snapshots() []Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Snapshot(nil), h.snaps...)
}

func (h *harness) waitSnapshot(msg string, cond func(Snapshot) bool) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return cond(h.ctrl.Snapshot()) }, waitFor, tick, msg)
}

func (h *harness) waitReady() {
	h.t.Helper()
	h.waitSnapshot("session never became ready", func(s Snapshot) bool {
		return s.Open && !s.Loading && s.CameraError == ""
	})
}

func TestController_CapturesOnceAndCloses(t *testing.T) {
	cam := workingCamera(t)
	h := newHarness(t, &fakeLoader{}, cam)

	id := h.ctrl.Open()
	require.NotEmpty(t, id)
	require.True(t, h.ctrl.Snapshot().Loading)

	h.waitReady()
	det := h.lastDetector()
	cfg, ok := det.Config()
	require.True(t, ok)
	require.Equal(t, detector.DefaultConfig(), cfg)

	h.show(detector.FingersLandmarks(1))
	h.waitSnapshot("step 1", func(s Snapshot) bool { return s.CurrentStep == 1 })

	h.show(detector.FingersLandmarks(2))
	h.waitSnapshot("step 2", func(s Snapshot) bool { return s.CurrentStep == 2 })

	h.show(detector.FingersLandmarks(3))
	h.waitSnapshot("countdown", func(s Snapshot) bool { return s.CountingDown || s.Status == StatusCaptured || !s.Open })

	// Lowering the hand during the countdown does not reset.
	h.show()

	require.Eventually(t, func() bool { return len(h.recorded()) == 2 }, waitFor, tick)
	require.Equal(t, []string{"photo", "close"}, h.recorded())

	h.mu.Lock()
	photo := h.photos[0]
	h.mu.Unlock()
	require.Equal(t, capture.PhotoMIMEType, photo.MIMEType)
	img, err := png.Decode(bytes.NewReader(photo.Data))
	require.NoError(t, err)
	require.Equal(t, image.Pt(capture.PhotoWidth, capture.PhotoHeight), img.Bounds().Size())

	snap := h.ctrl.Snapshot()
	require.False(t, snap.Open)
	require.Equal(t, id, snap.ID)
	require.Equal(t, StatusClosed, snap.Status)
	require.False(t, h.ctrl.IsOpen())

	require.True(t, det.Closed())
	require.False(t, cam.IsOpen())
	require.Equal(t, 1, cam.Closes())

	// Nothing runs after teardown.
	submissions := det.Submissions()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, submissions, det.Submissions())
	require.Equal(t, []string{"photo", "close"}, h.recorded())

	var countdown []int
	for _, s := range h.snapshots() {
		if s.CountingDown && (len(countdown) == 0 || countdown[len(countdown)-1] != s.Countdown) {
			countdown = append(countdown, s.Countdown)
		}
	}
	require.Equal(t, []int{3, 2, 1}, countdown)
}

func TestController_SkippedStepResets(t *testing.T) {
	h := newHarness(t, &fakeLoader{}, workingCamera(t))
	h.ctrl.Open()
	h.waitReady()

	h.show(detector.FingersLandmarks(1))
	h.waitSnapshot("step 1", func(s Snapshot) bool { return s.CurrentStep == 1 })

	h.show(detector.FingersLandmarks(3))
	h.waitSnapshot("reset", func(s Snapshot) bool {
		return s.CurrentStep == 0 && s.FingerCount == gesture.FingerCount(3)
	})

	time.Sleep(3 * testConfig().HoldDuration)
	snap := h.ctrl.Snapshot()
	require.False(t, snap.CountingDown)
	require.Empty(t, h.recorded())
}

func TestController_OpenErrors(t *testing.T) {
	tests := []struct {
		name    string
		loader  *fakeLoader
		detErr  error
		camera  func(t *testing.T) *capture.MockCamera
		wantErr string
	}{
		{
			name:   "permission denied",
			loader: &fakeLoader{},
			camera: func(t *testing.T) *capture.MockCamera {
				cam := workingCamera(t)
				cam.SetOpenError(capture.ErrDeviceUnavailable)
				return cam
			},
			wantErr: "Camera access denied or unavailable: camera device unavailable",
		},
		{
			name:   "never ready",
			loader: &fakeLoader{},
			camera: func(t *testing.T) *capture.MockCamera {
				cam := workingCamera(t)
				cam.SetReady(false)
				return cam
			},
			wantErr: "Video failed to load. Please try again.",
		},
		{
			name:   "playback",
			loader: &fakeLoader{},
			camera: func(t *testing.T) *capture.MockCamera {
				cam := workingCamera(t)
				cam.SetPlayError(capture.ErrNoFrames)
				return cam
			},
			wantErr: "Failed to play video: camera delivered no frames",
		},
		{
			name:    "runtime load",
			loader:  &fakeLoader{err: errors.New("mediapipe not installed")},
			camera:  workingCamera,
			wantErr: "Initialization failed: mediapipe not installed",
		},
		{
			name:    "detector construction",
			loader:  &fakeLoader{},
			detErr:  errors.New("model missing"),
			camera:  workingCamera,
			wantErr: "Initialization failed: model missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := tt.camera(t)
			h := newHarness(t, tt.loader, cam)
			h.detErr = tt.detErr

			h.ctrl.Open()
			h.waitSnapshot("error not reported", func(s Snapshot) bool { return s.CameraError != "" })

			snap := h.ctrl.Snapshot()
			require.Equal(t, tt.wantErr, snap.CameraError)
			require.False(t, snap.Loading)
			require.True(t, snap.Open)
			require.Equal(t, StatusFailed, snap.Status)

			// No gesture is evaluated after a fatal error.
			if det := h.detector(0); det != nil {
				det.SetHands(detector.FingersLandmarks(1))
			}
			time.Sleep(20 * time.Millisecond)
			require.Equal(t, 0, h.ctrl.Snapshot().CurrentStep)

			h.ctrl.Close()
			require.False(t, cam.IsOpen())
			if det := h.detector(0); det != nil {
				require.True(t, det.Closed())
			}
			require.Empty(t, h.recorded())
		})
	}
}

func TestController_ReopenAfterPermissionError(t *testing.T) {
	denied := workingCamera(t)
	denied.SetOpenError(capture.ErrDeviceUnavailable)
	granted := workingCamera(t)

	loader := &fakeLoader{}
	h := newHarness(t, loader, denied, granted)

	first := h.ctrl.Open()
	h.waitSnapshot("permission error", func(s Snapshot) bool { return s.CameraError != "" })
	h.ctrl.Close()

	second := h.ctrl.Open()
	require.NotEqual(t, first, second)
	h.waitReady()
	require.True(t, granted.IsOpen())
	require.Equal(t, StatusReady, h.ctrl.Snapshot().Status)
	require.EqualValues(t, 2, loader.calls.Load())
}

func TestController_OpenReplacesFailedSession(t *testing.T) {
	denied := workingCamera(t)
	denied.SetOpenError(capture.ErrDeviceUnavailable)
	h := newHarness(t, &fakeLoader{}, denied, workingCamera(t))

	first := h.ctrl.Open()
	h.waitSnapshot("permission error", func(s Snapshot) bool { return s.CameraError != "" })

	second := h.ctrl.Open()
	require.NotEqual(t, first, second)
	h.waitReady()
	require.True(t, h.detector(0).Closed())
}

func TestController_OpenWhileActiveIsNoop(t *testing.T) {
	h := newHarness(t, &fakeLoader{}, workingCamera(t))

	first := h.ctrl.Open()
	h.waitReady()
	require.Equal(t, first, h.ctrl.Open())

	h.mu.Lock()
	require.Equal(t, 1, h.camCalls)
	h.mu.Unlock()
}

func TestController_CloseDuringInitialization(t *testing.T) {
	loader := &fakeLoader{release: make(chan struct{})}
	cam := workingCamera(t)
	h := newHarness(t, loader, cam)

	h.ctrl.Open()
	require.Eventually(t, func() bool { return loader.calls.Load() == 1 }, waitFor, tick)

	h.ctrl.Close()
	closed := h.ctrl.Snapshot()
	require.False(t, closed.Open)

	close(loader.release)

	// The detector created after the close is released at once.
	require.Eventually(t, func() bool {
		det := h.detector(0)
		return det != nil && det.Closed()
	}, waitFor, tick)

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, cam.Opens())
	require.Equal(t, closed, h.ctrl.Snapshot())
}

func TestController_FrameErrorsAreSkipped(t *testing.T) {
	h := newHarness(t, &fakeLoader{}, workingCamera(t))
	h.ctrl.Open()
	h.waitReady()

	det := h.lastDetector()
	det.SetError(errors.New("bad frame"))
	before := det.Submissions()
	require.Eventually(t, func() bool { return det.Submissions() > before+3 }, waitFor, tick)
	require.Empty(t, h.ctrl.Snapshot().CameraError)

	det.SetError(nil)
	h.show(detector.FingersLandmarks(1))
	h.waitSnapshot("step 1", func(s Snapshot) bool { return s.CurrentStep == 1 })
}

func TestController_CaptureFailure(t *testing.T) {
	empty := gocv.NewMat()
	t.Cleanup(func() { empty.Close() })
	cam := capture.NewMockCamera([]*gocv.Mat{&empty}, true)

	h := newHarness(t, &fakeLoader{}, cam)
	h.ctrl.Open()
	h.waitReady()

	for _, n := range []int{1, 2, 3} {
		h.show(detector.FingersLandmarks(n))
		h.waitSnapshot("step", func(s Snapshot) bool { return s.CurrentStep == n })
	}

	h.waitSnapshot("capture error", func(s Snapshot) bool { return s.CameraError != "" })
	snap := h.ctrl.Snapshot()
	require.Equal(t, "Failed to capture photo: no frame to capture", snap.CameraError)
	require.Equal(t, StatusFailed, snap.Status)
	require.Empty(t, h.recorded())
}

func TestController_CloseIsIdempotent(t *testing.T) {
	cam := workingCamera(t)
	h := newHarness(t, &fakeLoader{}, cam)

	h.ctrl.Close()
	require.Equal(t, StatusClosed, h.ctrl.Snapshot().Status)
	require.Nil(t, h.ctrl.Frame())

	h.ctrl.Open()
	h.waitReady()
	require.Eventually(t, func() bool {
		frame := h.ctrl.Frame()
		if frame == nil {
			return false
		}
		defer frame.Close()
		return !frame.Empty()
	}, waitFor, tick)

	h.ctrl.SetOpen(false)
	h.ctrl.SetOpen(false)
	require.Equal(t, 1, cam.Closes())
	require.Equal(t, 1, h.detector(0).CloseCalls())
}

func TestController_CloseBeforeCapture(t *testing.T) {
	tests := []struct {
		name    string
		fingers []int
		reached func(Snapshot) bool
	}{
		{
			name:    "idle",
			reached: func(s Snapshot) bool { return s.CurrentStep == 0 && !s.CountingDown },
		},
		{
			name:    "step 1",
			fingers: []int{1},
			reached: func(s Snapshot) bool { return s.CurrentStep == 1 && !s.CountingDown },
		},
		{
			name:    "mid-countdown",
			fingers: []int{1, 2, 3},
			reached: func(s Snapshot) bool { return s.CountingDown && s.Countdown == 3 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.TickInterval = time.Second

			cam := workingCamera(t)
			h := newHarnessWithConfig(t, cfg, &fakeLoader{}, cam)
			h.ctrl.Open()
			h.waitReady()
			det := h.lastDetector()

			for _, n := range tt.fingers {
				h.show(detector.FingersLandmarks(n))
				h.waitSnapshot("step not reached", func(s Snapshot) bool { return s.CurrentStep >= n })
			}
			h.waitSnapshot("state not reached", tt.reached)

			h.ctrl.Close()

			snap := h.ctrl.Snapshot()
			require.False(t, snap.Open)
			require.False(t, snap.CountingDown)
			require.Equal(t, StatusClosed, snap.Status)

			require.True(t, det.Closed())
			require.False(t, cam.IsOpen())
			require.Equal(t, 1, cam.Closes())

			submissions := det.Submissions()
			time.Sleep(3 * cfg.HoldDuration)
			require.Equal(t, submissions, det.Submissions())
			require.Empty(t, h.recorded())
		})
	}
}

func TestController_CloseWithStalledDetector(t *testing.T) {
	cam := workingCamera(t)
	h := newHarness(t, &fakeLoader{}, cam)
	stalled := newStallingDetector()
	h.mu.Lock()
	h.factory = func() detector.PoseDetector { return stalled }
	h.mu.Unlock()

	h.ctrl.Open()
	h.waitReady()

	select {
	case <-stalled.entered:
	case <-time.After(waitFor):
		t.Fatal("no frame reached the detector")
	}

	done := make(chan struct{})
	go func() {
		h.ctrl.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Close blocked on a stalled detector")
	}

	require.True(t, stalled.Closed())
	require.False(t, cam.IsOpen())
	require.False(t, h.ctrl.Snapshot().Open)
	require.Empty(t, h.recorded())
}

func TestError(t *testing.T) {
	cause := errors.New("boom")
	err := error(&Error{Kind: ErrPlayback, Err: cause})

	require.ErrorIs(t, err, ErrPlayback)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrTimeout)
	require.Equal(t, "Failed to play video: boom", err.Error())

	var sessionErr *Error
	require.ErrorAs(t, err, &sessionErr)
	require.Equal(t, "Video failed to load. Please try again.", (&Error{Kind: ErrTimeout}).Error())
}

func TestLifecycle(t *testing.T) {
	l := newLifecycle("test")
	require.Equal(t, StatusLoading, l.current())

	require.False(t, l.fire(eventCapture))
	require.True(t, l.fire(eventReady))
	require.True(t, l.fire(eventCapture))
	require.False(t, l.fire(eventFail))
	require.Equal(t, StatusCaptured, l.current())
	require.True(t, l.fire(eventClose))
	require.False(t, l.fire(eventClose))
	require.Equal(t, StatusClosed, l.current())
}

func TestSnapshot_Message(t *testing.T) {
	tests := []struct {
		snap Snapshot
		want string
	}{
		{snap: closedSnapshot(), want: "Camera off"},
		{snap: Snapshot{Open: true, Loading: true}, want: "Starting camera..."},
		{snap: Snapshot{Open: true, CameraError: "Video failed to load. Please try again."}, want: "Video failed to load. Please try again."},
		{snap: Snapshot{Open: true, CountingDown: true, Countdown: 2}, want: "Countdown started! You can lower your hand. 2"},
		{snap: Snapshot{Open: true, CurrentStep: 2}, want: "Show 1, then 2, then 3 fingers to take a photo. Step 2/3"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, tt.snap.Message())
		})
	}
}
