package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/rs/zerolog/log"
)

const megabyte = 1024 * 1024

// ffmpegDevice streams MJPEG frames from an ffmpeg capture process and keeps the latest one.
type ffmpegDevice struct {
	cmd    *utils.SafeCommand
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	latest image.Image
	width  int
	height int
}

func openFFmpegDevice(ctx context.Context, format string, opts Options) (*ffmpegDevice, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found in PATH", ErrDeviceUnavailable)
	}
	if _, err := os.Stat(opts.Device); err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: permission denied for %s", ErrDeviceUnavailable, opts.Device)
		}
		return nil, fmt.Errorf("%w: no device at %s", ErrDeviceUnavailable, opts.Device)
	}

	// The capture process outlives the acquiring call, so it gets its own context
	captureCtx, cancel := context.WithCancel(context.Background())
	cmd := utils.NewFFmpegCaptureCmd(captureCtx, format, opts.Device, opts.Width)

	out, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: create capture pipe: %v", ErrDeviceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start capture: %v", ErrDeviceUnavailable, err)
	}

	d := &ffmpegDevice{cmd: cmd, cancel: cancel, done: make(chan struct{})}
	d.width, d.height = utils.ProbeDimensions(ctx, format, opts.Device)

	first := make(chan struct{})
	go d.readFrames(out, first)

	timeout := opts.StartupTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	select {
	case <-first:
		return d, nil
	case <-d.done:
		cancel()
		return nil, fmt.Errorf("%w: capture exited: %s", ErrDeviceUnavailable, strings.TrimSpace(cmd.Stderr.String()))
	case <-time.After(timeout):
		// The stream is alive but silent; frames fall back to the nominal size until it speaks
		log.Warn().Str("device", opts.Device).Dur("waited", timeout).Msg("camera produced no frame yet")
		return d, nil
	case <-ctx.Done():
		d.Close()
		return nil, ctx.Err()
	}
}

func (d *ffmpegDevice) readFrames(r io.Reader, first chan<- struct{}) {
	defer close(d.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 16*megabyte)
	scanner.Split(utils.SplitJpeg)

	signalled := false
	for scanner.Scan() {
		img, err := jpeg.Decode(bytes.NewReader(scanner.Bytes()))
		if err != nil {
			log.Debug().Err(err).Msg("skipping undecodable frame")
			continue
		}
		d.mu.Lock()
		d.latest = img
		b := img.Bounds()
		d.width, d.height = b.Dx(), b.Dy()
		d.mu.Unlock()

		if !signalled {
			close(first)
			signalled = true
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("capture stream ended")
	}
	_ = d.cmd.Wait()
}

func (d *ffmpegDevice) Frame() (image.Image, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest, d.latest != nil
}

// Dimensions reports the device size, or zeros while unknown.
func (d *ffmpegDevice) Dimensions() (int, int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.width, d.height
}

func (d *ffmpegDevice) Close() error {
	d.cancel()
	<-d.done
	return nil
}
