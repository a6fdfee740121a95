package detector

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Runtime locates the external model service.
type Runtime struct {
	Python string
	Script string
}

// ResolveFunc resolves and verifies the model runtime.
type ResolveFunc func(ctx context.Context) (Runtime, error)

// Loader loads the model runtime once per process. Concurrent callers share
// one attempt; only a successful attempt is cached.
type Loader struct {
	resolve ResolveFunc
	group   singleflight.Group

	mu       sync.Mutex
	loaded   *Runtime
	attempts int
}

// NewLoader creates a Loader around the given resolver.
func NewLoader(resolve ResolveFunc) *Loader {
	return &Loader{resolve: resolve}
}

var defaultLoader = NewLoader(FindMediaPipe)

// DefaultLoader returns the process-wide MediaPipe loader.
func DefaultLoader() *Loader {
	return defaultLoader
}

// Load returns the cached runtime or resolves it.
func (l *Loader) Load(ctx context.Context) (Runtime, error) {
	l.mu.Lock()
	if l.loaded != nil {
		rt := *l.loaded
		l.mu.Unlock()
		return rt, nil
	}
	l.mu.Unlock()

	ch := l.group.DoChan("runtime", func() (interface{}, error) {
		l.mu.Lock()
		l.attempts++
		l.mu.Unlock()

		// Shared by every waiter, so it must not inherit one caller's cancellation.
		rt, err := l.resolve(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.loaded = &rt
		l.mu.Unlock()
		return rt, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Runtime{}, res.Err
		}
		return res.Val.(Runtime), nil
	case <-ctx.Done():
		return Runtime{}, ctx.Err()
	}
}

// Attempts returns how many times the runtime has been resolved.
func (l *Loader) Attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

// FindMediaPipe finds the MediaPipe service script and a Python interpreter
// that can import mediapipe.
func FindMediaPipe(ctx context.Context) (Runtime, error) {
	script := findMediaPipeScript()
	if script == "" {
		return Runtime{}, fmt.Errorf("mediapipe_service.py not found")
	}

	python := findVenvPython()
	if python == "" {
		python = "python3"
	}

	out, err := exec.CommandContext(ctx, python, "-c", "import mediapipe").CombinedOutput()
	if err != nil {
		return Runtime{}, fmt.Errorf("load mediapipe: %w: %s", err, out)
	}

	return Runtime{Python: python, Script: script}, nil
}

func findMediaPipeScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/mediapipe_service.py",
		"../scripts/mediapipe_service.py",
		filepath.Join(execDir, "scripts/mediapipe_service.py"),
		filepath.Join(os.Getenv("HOME"), ".handcapture/scripts/mediapipe_service.py"),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".handcapture/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
