// Package gesture classifies hand poses and runs the finger-count capture sequence.
package gesture

import (
	"strconv"

	"github.com/ayusman/handcapture/internal/detector"
)

// FingerCount is the number of extended digits seen in a frame, or NoHand.
type FingerCount int

// NoHand is the observation for a frame without a detected hand.
const NoHand FingerCount = -1

// Present reports whether a hand was detected.
func (c FingerCount) Present() bool {
	return c >= 0
}

func (c FingerCount) String() string {
	if !c.Present() {
		return "-"
	}
	return strconv.Itoa(int(c))
}

// MarshalJSON encodes NoHand as null.
func (c FingerCount) MarshalJSON() ([]byte, error) {
	if !c.Present() {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(c))), nil
}

// CountFingers returns how many digits of the hand are extended (0-5).
//
// The thumb is extended when its tip lies outward of its MCP joint along X;
// outward is toward smaller X for a right hand and larger X for a left hand.
// The other fingers are extended when the tip is above (smaller Y) the PIP joint.
func CountFingers(hand *detector.HandLandmarks) int {
	if hand == nil {
		return 0
	}

	count := 0

	thumbTip := hand.Points[detector.ThumbTip].X
	thumbMCP := hand.Points[detector.ThumbMCP].X
	if hand.Label() == detector.HandRight {
		if thumbTip < thumbMCP {
			count++
		}
	} else if thumbTip > thumbMCP {
		count++
	}

	for _, tip := range detector.FingerTips[1:] {
		pip := tip - 2
		if hand.Points[tip].Y < hand.Points[pip].Y {
			count++
		}
	}

	return count
}

// Observe turns a detector result into an observation for the sequence.
func Observe(r detector.Result) FingerCount {
	hand, ok := r.First()
	if !ok {
		return NoHand
	}
	return FingerCount(CountFingers(hand))
}
