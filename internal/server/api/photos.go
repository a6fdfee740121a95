package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/handcapture/internal/store"
)

// PhotoHandler handles HTTP requests for captured photos.
type PhotoHandler struct {
	store *store.Store
}

// NewPhotoHandler creates a new PhotoHandler with the given store.
func NewPhotoHandler(s *store.Store) *PhotoHandler {
	return &PhotoHandler{store: s}
}

// Routes mounts the handler's endpoints on r.
func (h *PhotoHandler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/latest", h.latest)
	r.Get("/{id}", h.get)
	r.Get("/{id}/image", h.image)
	r.Delete("/{id}", h.delete)
}

type photoResponse struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id,omitempty"`
	MIMEType  string `json:"mime_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at"`
	DataURL   string `json:"data_url,omitempty"`
}

type listPhotosResponse struct {
	Photos []photoResponse `json:"photos"`
}

// toResponse converts a store.Photo to a photoResponse.
func toResponse(p *store.Photo) photoResponse {
	return photoResponse{
		ID:        p.ID,
		SessionID: p.SessionID,
		MIMEType:  p.MIMEType,
		Width:     p.Width,
		Height:    p.Height,
		Size:      p.Size,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

// list handles GET /api/photos and returns photo metadata.
func (h *PhotoHandler) list(w http.ResponseWriter, r *http.Request) {
	photos, err := h.store.Photos().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list photos")
		return
	}

	response := listPhotosResponse{Photos: make([]photoResponse, 0, len(photos))}
	for _, p := range photos {
		response.Photos = append(response.Photos, toResponse(p))
	}

	writeJSON(w, http.StatusOK, response)
}

// latest handles GET /api/photos/latest and includes the photo as a data URL.
func (h *PhotoHandler) latest(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Photos().Latest()
	if err != nil {
		h.storeError(w, err)
		return
	}

	response := toResponse(p)
	response.DataURL = "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/photos/{id} and returns the photo metadata.
func (h *PhotoHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Photos().GetByID(chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(p))
}

// image handles GET /api/photos/{id}/image and returns the encoded photo.
func (h *PhotoHandler) image(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Photos().GetByID(chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err)
		return
	}

	w.Header().Set("Content-Type", p.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(p.Data)
}

// delete handles DELETE /api/photos/{id}.
func (h *PhotoHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Photos().Delete(chi.URLParam(r, "id")); err != nil {
		h.storeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PhotoHandler) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "photo not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "failed to load photo")
}
