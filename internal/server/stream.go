package server

import (
	"fmt"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/handcapture/internal/capture"
	"github.com/ayusman/handcapture/internal/detector"
)

// FrameSource provides the latest preview frame. Frame returns nil when no
// frame is available; otherwise the caller must close it. Hands returns the
// hands found in the latest analyzed frame.
type FrameSource interface {
	Frame() *gocv.Mat
	Hands() []detector.HandLandmarks
}

// StreamHandler serves mirrored MJPEG frames from the capture session with
// the detected hand drawn over them.
type StreamHandler struct {
	source   FrameSource
	interval time.Duration
}

// NewStreamHandler creates a new StreamHandler with the given frame source.
func NewStreamHandler(source FrameSource) *StreamHandler {
	return &StreamHandler{
		source:   source,
		interval: 66 * time.Millisecond, // ~15 FPS
	}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if buf, ok := h.next(); ok {
			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(buf))
			w.Write(buf)
			fmt.Fprintf(w, "\r\n")

			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// next encodes the current preview.
func (h *StreamHandler) next() ([]byte, bool) {
	preview := h.render()
	if preview == nil {
		return nil, false
	}
	defer preview.Close()

	buf, err := capture.EncodeJPEG(preview)
	if err != nil {
		return nil, false
	}
	return buf, true
}

// render returns the current frame with the detected hand drawn over it,
// mirrored like the captured photo. The caller must close it.
func (h *StreamHandler) render() *gocv.Mat {
	frame := h.source.Frame()
	if frame == nil {
		return nil
	}
	defer frame.Close()

	// Landmarks are in camera coordinates, so draw before mirroring.
	if hands := h.source.Hands(); len(hands) > 0 {
		detector.DrawHand(frame, hands[0])
	}

	mirrored := capture.Mirror(frame)
	return &mirrored
}
