// Package config loads the service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ayusman/handcapture/internal/detector"
)

// ErrInvalid is returned for malformed settings.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the service settings.
type Config struct {
	Addr      string
	CameraID  int
	DataDir   string
	HookDir   string
	StaticDir string
	Tray      bool
	Detector  detector.Config
}

// DBPath is the location of the photo database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "handcapture.db")
}

// Load reads a .env file when present, then the HANDCAPTURE_* variables.
func Load() (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Addr:      ":8080",
		StaticDir: getenv("HANDCAPTURE_STATIC_DIR"),
		Detector:  detector.DefaultConfig(),
	}

	if v := getenv("HANDCAPTURE_ADDR"); v != "" {
		cfg.Addr = v
	}

	cfg.DataDir = getenv("HANDCAPTURE_DATA_DIR")
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".handcapture")
	}

	cfg.HookDir = getenv("HANDCAPTURE_HOOK_DIR")
	if cfg.HookDir == "" {
		cfg.HookDir = filepath.Join(cfg.DataDir, "hooks")
	}

	var err error
	if cfg.CameraID, err = intVar(getenv, "HANDCAPTURE_CAMERA_ID", 0); err != nil {
		return nil, err
	}
	if cfg.Tray, err = boolVar(getenv, "HANDCAPTURE_TRAY", false); err != nil {
		return nil, err
	}
	if cfg.Detector.ModelComplexity, err = intVar(getenv, "HANDCAPTURE_MODEL_COMPLEXITY", cfg.Detector.ModelComplexity); err != nil {
		return nil, err
	}
	if cfg.Detector.MinDetectionConfidence, err = floatVar(getenv, "HANDCAPTURE_MIN_DETECTION_CONFIDENCE", cfg.Detector.MinDetectionConfidence); err != nil {
		return nil, err
	}
	if cfg.Detector.MinTrackingConfidence, err = floatVar(getenv, "HANDCAPTURE_MIN_TRACKING_CONFIDENCE", cfg.Detector.MinTrackingConfidence); err != nil {
		return nil, err
	}

	if err := cfg.Detector.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return cfg, nil
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
	}
	return n, nil
}

func floatVar(getenv func(string) string, key string, def float64) (float64, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, v)
	}
	return f, nil
}

func boolVar(getenv func(string) string, key string, def bool) (bool, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, key, v)
	}
	return b, nil
}
