package camera

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

type deviceLock struct {
	path string
	fl   *flock.Flock
}

// lockDevice takes an exclusive, non-blocking lock for a device path so only
// one kiosk process holds a given camera at a time.
func lockDevice(dir, device string) (*deviceLock, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure lock directory: %w", err)
	}

	path := filepath.Join(dir, "rollcall-"+lockName(device)+".lock")
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %v", ErrDeviceUnavailable, path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: device busy (%s is held by another process)", ErrDeviceUnavailable, device)
	}
	return &deviceLock{path: path, fl: fl}, nil
}

func (l *deviceLock) release() {
	if l == nil || l.fl == nil {
		return
	}
	_ = l.fl.Unlock()
}

func lockName(device string) string {
	clean := filepath.Clean(device)
	r := strings.NewReplacer(string(filepath.Separator), "_", ":", "_", " ", "_")
	return strings.Trim(r.Replace(clean), "_")
}
