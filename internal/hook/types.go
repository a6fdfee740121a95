// Package hook runs external executables when a photo is captured, so a
// deployment can forward photos to its own storage.
package hook

import (
	"encoding/json"
	"slices"
	"time"
)

// EventPhotoCaptured is sent after a photo has been stored.
const EventPhotoCaptured = "photo.captured"

// ManifestFile is the manifest name looked up in every hook directory.
const ManifestFile = "hook.json"

// Manifest describes a hook's metadata and the events it handles.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Handles reports whether the hook subscribes to the event. A manifest
// without events handles all of them.
func (m Manifest) Handles(event string) bool {
	return len(m.Events) == 0 || slices.Contains(m.Events, event)
}

// Request is written as JSON to the hook's stdin.
type Request struct {
	Event      string          `json:"event"`
	PhotoID    string          `json:"photo_id"`
	SessionID  string          `json:"session_id"`
	Path       string          `json:"path"`
	MIMEType   string          `json:"mime_type"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	CapturedAt time.Time       `json:"captured_at"`
	Config     json.RawMessage `json:"config,omitempty"`
}

// Response is read as JSON from the hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}
