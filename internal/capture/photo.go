package capture

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"
)

// Output resolution of captured photos.
const (
	PhotoWidth  = 640
	PhotoHeight = 360
)

// PhotoMIMEType is the encoding of captured photos.
const PhotoMIMEType = "image/png"

// ErrEmptyFrame is returned when there is no frame to capture.
var ErrEmptyFrame = errors.New("no frame to capture")

// Photo is an encoded still image captured from the camera.
type Photo struct {
	Data       []byte
	Width      int
	Height     int
	MIMEType   string
	CapturedAt time.Time
}

// DataURL returns the photo as a data: URL.
func (p Photo) DataURL() string {
	return "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// Mirror returns a horizontally flipped copy of the frame, matching a
// selfie-style preview. The caller must close the result.
func Mirror(frame *gocv.Mat) gocv.Mat {
	mirrored := gocv.NewMat()
	gocv.Flip(*frame, &mirrored, 1)
	return mirrored
}

// EncodePhoto scales the frame to the photo resolution and encodes it as PNG.
// When mirror is set the photo is flipped to match the preview orientation.
func EncodePhoto(frame *gocv.Mat, mirror bool) (Photo, error) {
	if frame == nil || frame.Empty() {
		return Photo{}, ErrEmptyFrame
	}

	src := *frame
	if mirror {
		mirrored := Mirror(frame)
		defer mirrored.Close()
		src = mirrored
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(PhotoWidth, PhotoHeight), 0, 0, gocv.InterpolationLinear)

	buf, err := gocv.IMEncode(gocv.PNGFileExt, resized)
	if err != nil {
		return Photo{}, fmt.Errorf("encode photo: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close; keep a Go copy.
	data := append([]byte(nil), buf.GetBytes()...)

	return Photo{
		Data:       data,
		Width:      PhotoWidth,
		Height:     PhotoHeight,
		MIMEType:   PhotoMIMEType,
		CapturedAt: time.Now(),
	}, nil
}

// EncodeJPEG encodes a preview frame as JPEG.
func EncodeJPEG(frame *gocv.Mat) ([]byte, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}
