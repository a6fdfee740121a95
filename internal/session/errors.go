package session

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrPermission     = errors.New("camera permission denied")
	ErrInitialization = errors.New("initialization failed")
	ErrPlayback       = errors.New("video playback failed")
	ErrTimeout        = errors.New("video load timed out")
	ErrCapture        = errors.New("photo capture failed")
)

// Error is a fatal session error. Its message is shown to the user as is.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrPermission:
		return fmt.Sprintf("Camera access denied or unavailable: %s", e.cause())
	case ErrPlayback:
		return fmt.Sprintf("Failed to play video: %s", e.cause())
	case ErrTimeout:
		return "Video failed to load. Please try again."
	case ErrInitialization:
		return fmt.Sprintf("Initialization failed: %s", e.cause())
	case ErrCapture:
		return fmt.Sprintf("Failed to capture photo: %s", e.cause())
	}
	return e.cause()
}

func (e *Error) cause() string {
	if e.Err == nil {
		if e.Kind == nil {
			return "unknown error"
		}
		return e.Kind.Error()
	}
	return e.Err.Error()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
