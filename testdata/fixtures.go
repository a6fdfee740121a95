// Package testdata provides synthetic camera frames for tests.
package testdata

import (
	"image"

	"gocv.io/x/gocv"
)

// SolidFrame returns a BGR frame filled with one gray level. The caller must
// close it.
func SolidFrame(width, height int, level float64) *gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(level, level, level, 0), height, width, gocv.MatTypeCV8UC3)
	return &m
}

// HalfWhiteFrame returns a black frame whose left half is white, so the
// orientation of a derived image can be checked. The caller must close it.
func HalfWhiteFrame(width, height int) *gocv.Mat {
	m := SolidFrame(width, height, 0)
	left := m.Region(image.Rect(0, 0, width/2, height))
	left.SetTo(gocv.NewScalar(255, 255, 255, 0))
	left.Close()
	return m
}

// Sequence returns n frames of increasing brightness. The caller must close
// them with CloseAll.
func Sequence(width, height, n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		frames[i] = SolidFrame(width, height, float64(i*255/max(n, 1)))
	}
	return frames
}

// CloseAll releases frames.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		if f != nil {
			f.Close()
		}
	}
}
