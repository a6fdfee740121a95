package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/handcapture/internal/store"
)

// SessionHandler serves the capture session journal.
type SessionHandler struct {
	store *store.Store
}

// NewSessionHandler creates a new SessionHandler with the given store.
func NewSessionHandler(s *store.Store) *SessionHandler {
	return &SessionHandler{store: s}
}

// Routes mounts the handler's endpoints on r.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Get("/", h.list)
}

type sessionResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	OpenedAt string `json:"opened_at"`
	ClosedAt string `json:"closed_at,omitempty"`
}

// list handles GET /api/sessions?limit=N.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	sessions := make([]sessionResponse, 0, len(records))
	for _, rec := range records {
		resp := sessionResponse{
			ID:       rec.ID,
			Status:   rec.Status,
			Error:    rec.Error,
			OpenedAt: rec.OpenedAt.Format(time.RFC3339),
		}
		if rec.ClosedAt != nil {
			resp.ClosedAt = rec.ClosedAt.Format(time.RFC3339)
		}
		sessions = append(sessions, resp)
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}
