package camera

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// dirDevice replays the still images of a directory in name order, one per
// Frame call, wrapping around at the end. It stands in for a webcam on
// headless kiosks and in tests.
type dirDevice struct {
	mu    sync.Mutex
	paths []string
	next  int
}

func openDirDevice(dir string) (*dirDevice, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: permission denied for %s", ErrDeviceUnavailable, dir)
		}
		return nil, fmt.Errorf("%w: no device at %s", ErrDeviceUnavailable, dir)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", ErrDeviceUnavailable, dir)
	}
	sort.Strings(paths)

	return &dirDevice{paths: paths}, nil
}

func (d *dirDevice) Frame() (image.Image, bool) {
	d.mu.Lock()
	path := d.paths[d.next]
	d.next = (d.next + 1) % len(d.paths)
	d.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, false
	}
	return img, true
}

func (d *dirDevice) Close() error { return nil }
