package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/handcapture/internal/session"
)

// CaptureService opens and closes the capture session.
type CaptureService interface {
	Open() string
	Close()
	Snapshot() session.Snapshot
}

// State is the session snapshot with its user-facing message.
type State struct {
	session.Snapshot
	Message string `json:"message"`
}

// NewState builds the wire form of a snapshot.
func NewState(snap session.Snapshot) State {
	return State{Snapshot: snap, Message: snap.Message()}
}

// CaptureHandler handles the capture session endpoints.
type CaptureHandler struct {
	service CaptureService
}

// NewCaptureHandler creates a new CaptureHandler.
func NewCaptureHandler(service CaptureService) *CaptureHandler {
	return &CaptureHandler{service: service}
}

// Routes mounts the handler's endpoints on r.
func (h *CaptureHandler) Routes(r chi.Router) {
	r.Post("/open", h.open)
	r.Post("/close", h.close)
	r.Get("/state", h.state)
}

// open handles POST /api/capture/open.
func (h *CaptureHandler) open(w http.ResponseWriter, r *http.Request) {
	h.service.Open()
	writeJSON(w, http.StatusAccepted, NewState(h.service.Snapshot()))
}

// close handles POST /api/capture/close.
func (h *CaptureHandler) close(w http.ResponseWriter, r *http.Request) {
	h.service.Close()
	writeJSON(w, http.StatusOK, NewState(h.service.Snapshot()))
}

// state handles GET /api/capture/state.
func (h *CaptureHandler) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewState(h.service.Snapshot()))
}
