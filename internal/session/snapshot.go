package session

import (
	"strconv"

	"github.com/ayusman/handcapture/internal/gesture"
)

// Snapshot is the observable state of the capture session.
type Snapshot struct {
	ID           string              `json:"id,omitempty"`
	Open         bool                `json:"open"`
	Loading      bool                `json:"loading"`
	CameraError  string              `json:"camera_error,omitempty"`
	CurrentStep  int                 `json:"current_step"`
	CountingDown bool                `json:"counting_down"`
	Countdown    int                 `json:"countdown"`
	FingerCount  gesture.FingerCount `json:"finger_count"`
	Status       string              `json:"status"`
}

// closedSnapshot is reported when no session is open.
func closedSnapshot() Snapshot {
	return Snapshot{FingerCount: gesture.NoHand, Status: StatusClosed}
}

// Message returns the line shown to the user for this state.
func (s Snapshot) Message() string {
	switch {
	case !s.Open:
		return "Camera off"
	case s.CameraError != "":
		return s.CameraError
	case s.Loading:
		return "Starting camera..."
	case s.CountingDown:
		return "Countdown started! You can lower your hand. " + strconv.Itoa(s.Countdown)
	case s.Status == StatusCaptured:
		return "Photo captured"
	}
	return "Show 1, then 2, then 3 fingers to take a photo. Step " + strconv.Itoa(s.CurrentStep) + "/3"
}
