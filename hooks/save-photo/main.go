// Package main provides a hook that copies captured photos into a directory.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Request represents the input from the hook executor.
type Request struct {
	Event     string          `json:"event"`
	PhotoID   string          `json:"photo_id"`
	SessionID string          `json:"session_id"`
	Path      string          `json:"path"`
	MIMEType  string          `json:"mime_type"`
	Config    json.RawMessage `json:"config"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is read from the manifest.
type Config struct {
	Dir string `json:"dir"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Event != "photo.captured" {
		writeErrorResponse(fmt.Sprintf("unsupported event: %s", req.Event))
		return
	}

	dest, err := savePhoto(req)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	data, _ := json.Marshal(map[string]string{"saved": dest})
	writeResponse(Response{Success: true, Data: data})
}

// savePhoto copies the photo file into the configured directory.
func savePhoto(req Request) (string, error) {
	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return "", fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if cfg.Dir == "" {
		return "", fmt.Errorf("config dir is required")
	}
	if req.Path == "" || req.PhotoID == "" {
		return "", fmt.Errorf("photo path and id are required")
	}

	dir := expandHome(cfg.Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	src, err := os.Open(req.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open photo: %w", err)
	}
	defer src.Close()

	dest := filepath.Join(dir, req.PhotoID+extension(req.MIMEType))
	dst, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("failed to copy photo: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("failed to write photo: %w", err)
	}

	return dest, nil
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	default:
		return ".png"
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	writeResponse(Response{Success: false, Error: errMsg})
}

func writeResponse(resp Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}
