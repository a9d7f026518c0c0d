// Package config loads kiosk settings from defaults, an optional TOML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full kiosk configuration.
type Config struct {
	Backend Backend `toml:"backend"`
	Camera  Camera  `toml:"camera"`
	Scan    Scan    `toml:"scan"`
	Enroll  Enroll  `toml:"enroll"`
	Journal Journal `toml:"journal"`
	Panel   Panel   `toml:"panel"`
	Logging Logging `toml:"logging"`
}

// Backend locates the recognition service.
type Backend struct {
	URL     string   `toml:"url"`
	Timeout Duration `toml:"timeout"`
}

// Camera selects the capture device.
type Camera struct {
	Backend        string   `toml:"backend"`
	Device         string   `toml:"device"`
	Width          int      `toml:"width"`
	StartupTimeout Duration `toml:"startup_timeout"`
	LockDir        string   `toml:"lock_dir"`
}

// Scan tunes the attendance loop.
type Scan struct {
	Period            Duration `toml:"period"`
	Quality           float64  `toml:"quality"`
	SkipWhileInFlight bool     `toml:"skip_while_in_flight"`
}

// Enroll tunes the registration pipeline.
type Enroll struct {
	Quality   float64  `toml:"quality"`
	AutoCount int      `toml:"auto_count"`
	AutoDelay Duration `toml:"auto_delay"`
}

// Journal configures session persistence. DSN is a SQLite path or a
// postgres:// URL; "off" disables the journal.
type Journal struct {
	DSN string `toml:"dsn"`
}

// Panel configures the local status panel. An empty address disables it.
type Panel struct {
	Addr string `toml:"addr"`
}

// Logging configures diagnostics.
type Logging struct {
	Level string `toml:"level"`
}

// JournalOff disables the journal when used as the DSN.
const JournalOff = "off"

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend: Backend{URL: "http://127.0.0.1:5000", Timeout: Duration(30 * time.Second)},
		Camera: Camera{
			Backend:        "v4l2",
			Device:         "/dev/video0",
			Width:          640,
			StartupTimeout: Duration(5 * time.Second),
		},
		Scan:    Scan{Period: Duration(3 * time.Second), Quality: 0.7},
		Enroll:  Enroll{Quality: 0.8, AutoCount: 30, AutoDelay: Duration(300 * time.Millisecond)},
		Journal: Journal{DSN: DefaultJournalPath()},
		Logging: Logging{Level: "info"},
	}
}

// DefaultJournalPath is the SQLite journal location used when nothing else is configured.
func DefaultJournalPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "rollcall", "journal.db")
}

// Load builds the configuration: defaults, then the TOML file at path (if
// one is given it must exist), then the environment.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s does not exist", path)
			}
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// JournalEnabled reports whether a journal should be opened.
func (c *Config) JournalEnabled() bool {
	return c.Journal.DSN != "" && c.Journal.DSN != JournalOff
}

// Duration is a time.Duration written as a Go duration string ("300ms", "3s").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
