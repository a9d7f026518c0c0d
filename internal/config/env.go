package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// applyEnv overlays ROLLCALL_* variables. When no journal DSN is given but
// POSTGRES_HOST is set, a Postgres DSN is built from the POSTGRES_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"ROLLCALL_BACKEND_URL", &c.Backend.URL},
		{"ROLLCALL_CAMERA_BACKEND", &c.Camera.Backend},
		{"ROLLCALL_DEVICE", &c.Camera.Device},
		{"ROLLCALL_LOCK_DIR", &c.Camera.LockDir},
		{"ROLLCALL_PANEL_ADDR", &c.Panel.Addr},
		{"ROLLCALL_LOG_LEVEL", &c.Logging.Level},
	}
	for _, s := range strs {
		if v, ok := get(s.key); ok {
			*s.dst = v
		}
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{"ROLLCALL_TIMEOUT", &c.Backend.Timeout},
		{"ROLLCALL_STARTUP_TIMEOUT", &c.Camera.StartupTimeout},
		{"ROLLCALL_SCAN_PERIOD", &c.Scan.Period},
		{"ROLLCALL_AUTO_DELAY", &c.Enroll.AutoDelay},
	}
	for _, d := range durations {
		if v, ok := get(d.key); ok {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", d.key, err)
			}
			*d.dst = Duration(parsed)
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"ROLLCALL_WIDTH", &c.Camera.Width},
		{"ROLLCALL_AUTO_COUNT", &c.Enroll.AutoCount},
	}
	for _, i := range ints {
		if v, ok := get(i.key); ok {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", i.key, err)
			}
			*i.dst = parsed
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"ROLLCALL_SCAN_QUALITY", &c.Scan.Quality},
		{"ROLLCALL_ENROLL_QUALITY", &c.Enroll.Quality},
	}
	for _, f := range floats {
		if v, ok := get(f.key); ok {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
			*f.dst = parsed
		}
	}

	if v, ok := get("ROLLCALL_SKIP_WHILE_IN_FLIGHT"); ok {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ROLLCALL_SKIP_WHILE_IN_FLIGHT: %w", err)
		}
		c.Scan.SkipWhileInFlight = parsed
	}

	if v, ok := get("ROLLCALL_JOURNAL"); ok {
		c.Journal.DSN = v
	} else if host, ok := get("POSTGRES_HOST"); ok {
		user, _ := get("POSTGRES_USER")
		pass, _ := get("POSTGRES_PASSWORD")
		name, _ := get("POSTGRES_DB")
		port, ok := get("POSTGRES_PORT")
		if !ok {
			port = "5432"
		}
		c.Journal.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}

	return nil
}
