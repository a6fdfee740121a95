package gesture

// Phase is a position in the 1-2-3 finger challenge.
type Phase int

const (
	// PhaseIdle waits for one finger.
	PhaseIdle Phase = iota
	// PhaseStep1 has seen one finger and waits for two.
	PhaseStep1
	// PhaseStep2 has seen two fingers and waits for three held steady.
	PhaseStep2
	// PhaseCapturing counts down to the photo.
	PhaseCapturing
	// PhaseCaptured is terminal; the photo has been requested.
	PhaseCaptured
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStep1:
		return "step1"
	case PhaseStep2:
		return "step2"
	case PhaseCapturing:
		return "capturing"
	case PhaseCaptured:
		return "captured"
	default:
		return "unknown"
	}
}

// CountdownStart is the first value shown once capture is armed.
const CountdownStart = 3

// EffectKind identifies a side effect requested by a transition.
type EffectKind int

const (
	// EffectStartHold arms the stabilization timer identified by Effect.Timer.
	EffectStartHold EffectKind = iota + 1
	// EffectCancelHold disarms the stabilization timer identified by Effect.Timer.
	EffectCancelHold
	// EffectStartCountdown starts the once-per-tick countdown.
	EffectStartCountdown
	// EffectStopCountdown stops the countdown ticks.
	EffectStopCountdown
	// EffectCapture takes the photo.
	EffectCapture
)

func (k EffectKind) String() string {
	switch k {
	case EffectStartHold:
		return "start-hold"
	case EffectCancelHold:
		return "cancel-hold"
	case EffectStartCountdown:
		return "start-countdown"
	case EffectStopCountdown:
		return "stop-countdown"
	case EffectCapture:
		return "capture"
	default:
		return "unknown"
	}
}

// Effect is a side effect the driver must perform after a transition.
type Effect struct {
	Kind  EffectKind
	Timer uint64
}

// Sequence is the state of the finger-count challenge. It is a value type:
// every transition returns the next state and the effects to run, and never
// touches timers itself.
type Sequence struct {
	phase     Phase
	countdown int
	last      FingerCount
	hold      uint64
	timers    uint64
}

// NewSequence returns a sequence in PhaseIdle with no hand observed.
func NewSequence() Sequence {
	return Sequence{last: NoHand}
}

// Phase returns the current phase.
func (s Sequence) Phase() Phase { return s.phase }

// Step returns the confirmed step, 0 to 3. Capturing and Captured report 3.
func (s Sequence) Step() int {
	if s.phase > PhaseCapturing {
		return int(PhaseCapturing)
	}
	return int(s.phase)
}

// CountingDown reports whether the countdown is running.
func (s Sequence) CountingDown() bool { return s.phase == PhaseCapturing }

// Countdown returns the remaining countdown value.
func (s Sequence) Countdown() int { return s.countdown }

// Last returns the latest observation.
func (s Sequence) Last() FingerCount { return s.last }

// HoldPending returns the id of the armed stabilization timer, or 0.
func (s Sequence) HoldPending() uint64 { return s.hold }

// Observe feeds a finger count. Repeated values are ignored: the sequence only
// reacts when the observed count changes.
func (s Sequence) Observe(count FingerCount) (Sequence, []Effect) {
	if count == s.last {
		return s, nil
	}
	s.last = count

	// Once the countdown is armed the user may lower the hand.
	if s.phase >= PhaseCapturing {
		return s, nil
	}

	var effects []Effect
	if s.hold != 0 {
		effects = append(effects, Effect{Kind: EffectCancelHold, Timer: s.hold})
		s.hold = 0
	}

	step := FingerCount(s.Step())
	switch {
	case s.phase == PhaseIdle && count == 1:
		s.phase = PhaseStep1
	case s.phase == PhaseStep1 && count == 2:
		s.phase = PhaseStep2
	case s.phase == PhaseStep2 && count == 3:
		s.timers++
		s.hold = s.timers
		effects = append(effects, Effect{Kind: EffectStartHold, Timer: s.hold})
	case count.Present() && count != step && count != step+1:
		s = s.reset()
	case !count.Present() && step > 0:
		s = s.reset()
	}

	return s, effects
}

// HoldElapsed reports that the stabilization timer fired. Timers that were
// cancelled or replaced are ignored.
func (s Sequence) HoldElapsed(timer uint64) (Sequence, []Effect) {
	if s.phase != PhaseStep2 || s.hold == 0 || timer != s.hold {
		return s, nil
	}

	s.hold = 0
	s.phase = PhaseCapturing
	s.countdown = CountdownStart
	return s, []Effect{{Kind: EffectStartCountdown}}
}

// Tick advances the countdown by one. Reaching zero requests the capture
// exactly once; later ticks are ignored.
func (s Sequence) Tick() (Sequence, []Effect) {
	if s.phase != PhaseCapturing {
		return s, nil
	}

	s.countdown--
	if s.countdown > 0 {
		return s, nil
	}

	s.countdown = 0
	s.phase = PhaseCaptured
	return s, []Effect{{Kind: EffectStopCountdown}, {Kind: EffectCapture}}
}

// reset returns to PhaseIdle keeping the latest observation and timer counter.
func (s Sequence) reset() Sequence {
	s.phase = PhaseIdle
	s.countdown = 0
	s.hold = 0
	return s
}
