package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// waitDelay bounds how long a killed service may keep its pipes open.
const waitDelay = 2 * time.Second

// MediaPipeDetector implements PoseDetector using a Python MediaPipe subprocess.
//
// Requests are serialized by reqMu. State shared with Close and with
// interrupts lives under mu, so a stalled round trip can always be broken
// by killing the process.
type MediaPipeDetector struct {
	runtime Runtime

	mu       sync.Mutex
	config   Config
	onResult func(Result)
	started  bool
	closed   bool
	kill     context.CancelFunc

	reqMu  sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

// NewMediaPipeDetector creates a detector for the given runtime.
// The Python process is started lazily on the first submitted frame.
func NewMediaPipeDetector(rt Runtime) *MediaPipeDetector {
	return &MediaPipeDetector{
		runtime: rt,
		config:  DefaultConfig(),
	}
}

// NewMediaPipeFactory returns a Factory producing MediaPipe detectors.
func NewMediaPipeFactory() Factory {
	return func(rt Runtime) (PoseDetector, error) {
		if rt.Script == "" {
			return nil, fmt.Errorf("mediapipe runtime has no service script")
		}
		return NewMediaPipeDetector(rt), nil
	}
}

// Configure sets the model options passed to the service on start.
func (d *MediaPipeDetector) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("configure after start")
	}
	d.config = cfg
	return nil
}

// OnResult registers the result callback.
func (d *MediaPipeDetector) OnResult(fn func(Result)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onResult = fn
}

// Submit sends a frame to the service and delivers the answer to the result
// callback. Cancelling ctx kills a request in flight; the service is
// restarted on the next frame.
func (d *MediaPipeDetector) Submit(ctx context.Context, frame *gocv.Mat) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if frame == nil || frame.Empty() {
		return fmt.Errorf("empty frame")
	}

	stop := context.AfterFunc(ctx, d.interrupt)
	defer stop()

	result, callback, err := d.detect(ctx, frame)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}

	if callback != nil && ctx.Err() == nil {
		callback(result)
	}
	return nil
}

// interrupt kills the running service without waiting for the request lock.
func (d *MediaPipeDetector) interrupt() {
	d.mu.Lock()
	kill := d.kill
	d.mu.Unlock()
	if kill != nil {
		kill()
	}
}

func (d *MediaPipeDetector) detect(ctx context.Context, frame *gocv.Mat) (Result, func(Result), error) {
	d.reqMu.Lock()
	defer d.reqMu.Unlock()

	d.mu.Lock()
	closed, cfg, callback := d.closed, d.config, d.onResult
	d.mu.Unlock()
	if closed {
		return Result{}, nil, ErrClosed
	}

	if err := d.ensureStarted(cfg); err != nil {
		return Result{}, nil, err
	}
	// An interrupt may have fired before the service was killable.
	if err := ctx.Err(); err != nil {
		d.shutdown()
		return Result{}, nil, err
	}

	result, err := d.roundTrip(frame, cfg.MaxHands)
	if err != nil {
		// The stream is out of sync; start over on the next frame.
		d.shutdown()
		return Result{}, nil, err
	}
	return result, callback, nil
}

// roundTrip must be called with d.reqMu held.
func (d *MediaPipeDetector) roundTrip(frame *gocv.Mat, maxHands int) (Result, error) {
	// Encode frame as JPEG
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return Result{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		return Result{}, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return Result{}, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	var response struct {
		Hands []jsonHand `json:"hands"`
	}
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return Result{}, fmt.Errorf("parse response: %w", err)
	}

	result := Result{
		Hands:     make([]HandLandmarks, 0, len(response.Hands)),
		Timestamp: time.Now().UnixMilli(),
	}
	for i, h := range response.Hands {
		if i >= maxHands {
			break
		}
		result.Hands = append(result.Hands, h.toHandLandmarks())
	}
	return result, nil
}

// Close shuts down the Python process. A request in flight is killed
// rather than awaited.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	if !d.reqMu.TryLock() {
		d.interrupt()
		d.reqMu.Lock()
	}
	defer d.reqMu.Unlock()
	d.shutdown()
	return nil
}

// ensureStarted must be called with d.reqMu held.
func (d *MediaPipeDetector) ensureStarted(cfg Config) error {
	if d.cmd != nil {
		return nil
	}

	ctx, kill := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, d.runtime.Python, d.runtime.Script,
		"--max-hands", strconv.Itoa(cfg.MaxHands),
		"--model-complexity", strconv.Itoa(cfg.ModelComplexity),
		"--min-detection-confidence", strconv.FormatFloat(cfg.MinDetectionConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(cfg.MinTrackingConfidence, 'f', -1, 64),
	)
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		kill()
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		kill()
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		kill()
		return fmt.Errorf("start mediapipe service: %w", err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)

	d.mu.Lock()
	d.started = true
	d.kill = kill
	closed := d.closed
	d.mu.Unlock()

	if closed {
		d.shutdown()
		return ErrClosed
	}
	return nil
}

// shutdown must be called with d.reqMu held.
func (d *MediaPipeDetector) shutdown() {
	if d.cmd == nil {
		return
	}

	d.stdin.Close()
	if err := d.cmd.Wait(); err != nil {
		log.Printf("mediapipe service exited: %v", err)
	}

	d.mu.Lock()
	if d.kill != nil {
		d.kill()
		d.kill = nil
	}
	d.mu.Unlock()

	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []jsonPoint `json:"points"`
	Handedness string      `json:"handedness"`
	Score      float64     `json:"score"`
}

type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}

	for i := 0; i < NumLandmarks && i < len(h.Points); i++ {
		lm.Points[i] = Point3D{
			X: h.Points[i].X,
			Y: h.Points[i].Y,
			Z: h.Points[i].Z,
		}
	}

	return lm
}
