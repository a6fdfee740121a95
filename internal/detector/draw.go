package detector

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// HandConnections lists the landmark pairs forming the hand skeleton.
var HandConnections = [][2]int{
	{Wrist, ThumbCMC}, {ThumbCMC, ThumbMCP}, {ThumbMCP, ThumbIP}, {ThumbIP, ThumbTip},
	{Wrist, IndexMCP}, {IndexMCP, IndexPIP}, {IndexPIP, IndexDIP}, {IndexDIP, IndexTip},
	{IndexMCP, MiddleMCP}, {MiddleMCP, MiddlePIP}, {MiddlePIP, MiddleDIP}, {MiddleDIP, MiddleTip},
	{MiddleMCP, RingMCP}, {RingMCP, RingPIP}, {RingPIP, RingDIP}, {RingDIP, RingTip},
	{RingMCP, PinkyMCP}, {Wrist, PinkyMCP}, {PinkyMCP, PinkyPIP}, {PinkyPIP, PinkyDIP}, {PinkyDIP, PinkyTip},
}

var (
	connectorColor = color.RGBA{G: 255, A: 255}
	landmarkColor  = color.RGBA{R: 255, A: 255}
)

// DrawHand draws the skeleton and keypoints of hand onto img in place.
// Landmark coordinates are scaled to the image size.
func DrawHand(img *gocv.Mat, hand HandLandmarks) {
	if img == nil || img.Empty() {
		return
	}
	w, h := img.Cols(), img.Rows()
	pt := func(i int) image.Point {
		p := hand.Points[i]
		return image.Pt(int(p.X*float64(w)), int(p.Y*float64(h)))
	}

	for _, c := range HandConnections {
		gocv.Line(img, pt(c[0]), pt(c[1]), connectorColor, 2)
	}
	for i := range hand.Points {
		gocv.Circle(img, pt(i), 3, landmarkColor, -1)
	}
}
