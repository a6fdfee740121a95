package session

import (
	"context"
	"log"

	"github.com/looplab/fsm"
)

// Lifecycle states reported in Snapshot.Status.
const (
	StatusLoading  = "loading"
	StatusReady    = "ready"
	StatusCaptured = "captured"
	StatusFailed   = "failed"
	StatusClosed   = "closed"
)

const (
	eventReady   = "ready"
	eventCapture = "capture"
	eventFail    = "fail"
	eventClose   = "close"
)

// lifecycle tracks the coarse status of one session.
type lifecycle struct {
	fsm *fsm.FSM
}

func newLifecycle(id string) *lifecycle {
	return &lifecycle{
		fsm: fsm.NewFSM(
			StatusLoading,
			fsm.Events{
				{Name: eventReady, Src: []string{StatusLoading}, Dst: StatusReady},
				{Name: eventCapture, Src: []string{StatusReady}, Dst: StatusCaptured},
				{Name: eventFail, Src: []string{StatusLoading, StatusReady}, Dst: StatusFailed},
				{Name: eventClose, Src: []string{StatusLoading, StatusReady, StatusCaptured, StatusFailed}, Dst: StatusClosed},
			},
			fsm.Callbacks{
				"enter_state": func(_ context.Context, e *fsm.Event) {
					log.Printf("Capture session %s: %s -> %s", id, e.Src, e.Dst)
				},
			},
		),
	}
}

// fire applies the event if the current state allows it.
func (l *lifecycle) fire(event string) bool {
	if !l.fsm.Can(event) {
		return false
	}
	return l.fsm.Event(context.Background(), event) == nil
}

func (l *lifecycle) current() string {
	return l.fsm.Current()
}
