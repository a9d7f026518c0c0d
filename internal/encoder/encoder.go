// Package encoder turns a camera frame into the still-image payload the
// recognition backend accepts.
package encoder

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"
)

// Quality presets. Attendance favours speed, enrollment favours sharper training samples.
const (
	AttendanceQuality = 0.7
	EnrollmentQuality = 0.8
)

const (
	fallbackWidth  = 640
	fallbackHeight = 480
	mimeJPEG       = "image/jpeg"
)

// EncodedFrame is an immutable still-image payload derived from one frame snapshot.
type EncodedFrame struct {
	data    []byte
	mime    string
	quality float64
}

// Bytes returns a copy of the compressed image.
func (f EncodedFrame) Bytes() []byte {
	return append([]byte(nil), f.data...)
}

// MIME returns the encoding identifier.
func (f EncodedFrame) MIME() string { return f.mime }

// Quality returns the quality the frame was compressed with.
func (f EncodedFrame) Quality() float64 { return f.quality }

// Len returns the payload size in bytes.
func (f EncodedFrame) Len() int { return len(f.data) }

// DataURL returns the frame in data URL form, which is what the backend splits
// on the first comma before base64-decoding.
func (f EncodedFrame) DataURL() string {
	return "data:" + f.mime + ";base64," + base64.StdEncoding.EncodeToString(f.data)
}

// Encode renders the frame onto a canvas of its own size and compresses it
// to JPEG. quality is in the 0..1 range; out-of-range values are clamped.
func Encode(frame image.Image, quality float64) EncodedFrame {
	canvas := render(frame)

	q := clampQuality(quality)
	var buf bytes.Buffer
	// Encoding into a bytes.Buffer cannot fail for an in-memory RGBA canvas
	_ = jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: int(math.Round(q * 100))})

	return EncodedFrame{data: buf.Bytes(), mime: mimeJPEG, quality: q}
}

func render(frame image.Image) *image.RGBA {
	w, h := fallbackWidth, fallbackHeight
	if frame != nil {
		if b := frame.Bounds(); b.Dx() > 0 && b.Dy() > 0 {
			w, h = b.Dx(), b.Dy()
		}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	if frame == nil || frame.Bounds().Empty() {
		return canvas
	}
	draw.ApproxBiLinear.Scale(canvas, canvas.Bounds(), frame, frame.Bounds(), draw.Src, nil)
	return canvas
}

func clampQuality(q float64) float64 {
	switch {
	case math.IsNaN(q) || q <= 0:
		return 0.01
	case q > 1:
		return 1
	default:
		return q
	}
}
