package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rollcall.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := load("", envMap(nil))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Scan.Period.Std() != 3*time.Second || cfg.Enroll.AutoCount != 30 || cfg.Enroll.AutoDelay.Std() != 300*time.Millisecond {
		t.Errorf("unexpected workflow defaults %+v %+v", cfg.Scan, cfg.Enroll)
	}
	if cfg.Scan.Quality != 0.7 || cfg.Enroll.Quality != 0.8 {
		t.Errorf("unexpected quality defaults %v/%v", cfg.Scan.Quality, cfg.Enroll.Quality)
	}
	if !cfg.JournalEnabled() {
		t.Error("journal should be enabled by default")
	}
}

func TestPrecedence(t *testing.T) {
	path := writeConfig(t, `
[backend]
url = "http://kiosk-backend:5000"
timeout = "10s"

[scan]
period = "5s"
skip_while_in_flight = true

[enroll]
auto_count = 10
`)

	cfg, err := load(path, envMap(map[string]string{
		"ROLLCALL_SCAN_PERIOD": "2s",
		"ROLLCALL_AUTO_DELAY":  "150ms",
		"ROLLCALL_DEVICE":      "/dev/video2",
	}))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Backend.URL != "http://kiosk-backend:5000" || cfg.Backend.Timeout.Std() != 10*time.Second {
		t.Errorf("file values not applied: %+v", cfg.Backend)
	}
	if cfg.Scan.Period.Std() != 2*time.Second {
		t.Errorf("env should override file, got period %s", cfg.Scan.Period)
	}
	if !cfg.Scan.SkipWhileInFlight || cfg.Enroll.AutoCount != 10 {
		t.Errorf("file values lost: %+v %+v", cfg.Scan, cfg.Enroll)
	}
	if cfg.Enroll.AutoDelay.Std() != 150*time.Millisecond || cfg.Camera.Device != "/dev/video2" {
		t.Errorf("env values not applied: %+v %+v", cfg.Enroll, cfg.Camera)
	}
	if cfg.Scan.Quality != 0.7 {
		t.Errorf("untouched defaults should survive, got %v", cfg.Scan.Quality)
	}
}

func TestPostgresFromEnvironment(t *testing.T) {
	cfg, err := load("", envMap(map[string]string{
		"POSTGRES_HOST":     "db",
		"POSTGRES_USER":     "kiosk",
		"POSTGRES_PASSWORD": "secret",
		"POSTGRES_DB":       "rollcall",
	}))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if want := "postgres://kiosk:secret@db:5432/rollcall"; cfg.Journal.DSN != want {
		t.Errorf("got DSN %q, want %q", cfg.Journal.DSN, want)
	}

	cfg, err = load("", envMap(map[string]string{"POSTGRES_HOST": "db", "ROLLCALL_JOURNAL": "off"}))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.JournalEnabled() {
		t.Error("ROLLCALL_JOURNAL=off should win over POSTGRES_HOST")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		env  map[string]string
		want string
	}{
		{"missing file", filepath.Join(t.TempDir(), "nope.toml"), nil, "does not exist"},
		{"unknown key", writeConfig(t, "[scan]\nperoid = \"3s\"\n"), nil, "parse config"},
		{"bad duration", writeConfig(t, "[scan]\nperiod = \"soon\"\n"), nil, "parse config"},
		{"bad env int", "", map[string]string{"ROLLCALL_AUTO_COUNT": "thirty"}, "ROLLCALL_AUTO_COUNT"},
		{"bad env bool", "", map[string]string{"ROLLCALL_SKIP_WHILE_IN_FLIGHT": "maybe"}, "ROLLCALL_SKIP_WHILE_IN_FLIGHT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(tt.path, envMap(tt.env))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad url", func(c *Config) { c.Backend.URL = "ftp://x" }, "backend.url"},
		{"negative timeout", func(c *Config) { c.Backend.Timeout = -1 }, "backend.timeout"},
		{"unknown camera backend", func(c *Config) { c.Camera.Backend = "dshow" }, "camera.backend"},
		{"empty device", func(c *Config) { c.Camera.Device = " " }, "camera.device"},
		{"zero period", func(c *Config) { c.Scan.Period = 0 }, "scan.period"},
		{"quality too high", func(c *Config) { c.Enroll.Quality = 1.2 }, "enroll.quality"},
		{"no samples", func(c *Config) { c.Enroll.AutoCount = 0 }, "enroll.auto_count"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}

	zero := Default()
	zero.Backend.Timeout = 0
	if err := zero.Validate(); err != nil {
		t.Errorf("a zero timeout disables the bound and should validate: %v", err)
	}
}
