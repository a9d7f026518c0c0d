// Package camera owns the live frame source of a kiosk: it acquires a capture
// device once, keeps the most recent frame around, and hands it out on demand.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"
)

// ErrDeviceUnavailable is returned when the capture device cannot be acquired
// (permission denied, no device, device busy).
var ErrDeviceUnavailable = errors.New("camera unavailable")

// Nominal frame size used until the device reports its real dimensions.
const (
	NominalWidth  = 640
	NominalHeight = 480
)

// Backend names accepted in Options.Backend.
const (
	BackendV4L2 = "v4l2"
	BackendDir  = "dir"
)

// Device is a frame-producing handle. Frame reports false while no frame has
// been produced yet.
type Device interface {
	Frame() (image.Image, bool)
	Close() error
}

// Options configures device acquisition.
type Options struct {
	Backend        string
	Device         string
	Width          int
	StartupTimeout time.Duration
	LockDir        string
}

// Source wraps the single active device of a workflow context.
type Source struct {
	device Device
	lock   *deviceLock
}

// Acquire requests access to the configured capture device. It fails with an
// error wrapping ErrDeviceUnavailable when the device cannot be used.
func Acquire(ctx context.Context, opts Options) (*Source, error) {
	if strings.TrimSpace(opts.Device) == "" {
		return nil, fmt.Errorf("%w: no device configured", ErrDeviceUnavailable)
	}

	lock, err := lockDevice(opts.LockDir, opts.Device)
	if err != nil {
		return nil, err
	}

	var dev Device
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendV4L2:
		dev, err = openFFmpegDevice(ctx, "v4l2", opts)
	case BackendDir:
		dev, err = openDirDevice(opts.Device)
	default:
		err = fmt.Errorf("%w: unsupported backend %q", ErrDeviceUnavailable, opts.Backend)
	}
	if err != nil {
		lock.release()
		return nil, err
	}

	return &Source{device: dev, lock: lock}, nil
}

// FromDevice wraps an already opened device. The caller keeps responsibility
// for device exclusivity.
func FromDevice(d Device) *Source {
	return &Source{device: d}
}

// CurrentFrame returns the most recent visual content. Before the device has
// produced anything a blank frame of the nominal size is returned.
func (s *Source) CurrentFrame() image.Image {
	if s != nil && s.device != nil {
		if img, ok := s.device.Frame(); ok && img != nil {
			return img
		}
	}
	w, h := NominalWidth, NominalHeight
	if s != nil {
		if d, ok := s.device.(interface{ Dimensions() (int, int) }); ok {
			if dw, dh := d.Dimensions(); dw > 0 && dh > 0 {
				w, h = dw, dh
			}
		}
	}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// Close releases the device and its lock.
func (s *Source) Close() error {
	if s == nil || s.device == nil {
		return nil
	}
	err := s.device.Close()
	if s.lock != nil {
		s.lock.release()
	}
	return err
}
