package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateCamera(); err != nil {
		return err
	}
	if err := c.validateWorkflows(); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func (c *Config) validateBackend() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("backend.url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.url must be an http(s) URL, got %q", c.Backend.URL)
	}
	if c.Backend.Timeout < 0 {
		return errors.New("backend.timeout must not be negative (0 disables it)")
	}
	return nil
}

func (c *Config) validateCamera() error {
	switch strings.ToLower(c.Camera.Backend) {
	case "v4l2", "dir":
	default:
		return fmt.Errorf("camera.backend must be v4l2 or dir, got %q", c.Camera.Backend)
	}
	if strings.TrimSpace(c.Camera.Device) == "" {
		return errors.New("camera.device must be set")
	}
	if c.Camera.Width < 0 {
		return fmt.Errorf("camera.width must be >= 0, got %d", c.Camera.Width)
	}
	return nil
}

func (c *Config) validateWorkflows() error {
	if c.Scan.Period <= 0 {
		return fmt.Errorf("scan.period must be positive, got %s", c.Scan.Period)
	}
	if c.Scan.Quality <= 0 || c.Scan.Quality > 1 {
		return fmt.Errorf("scan.quality must be between 0 and 1, got %g", c.Scan.Quality)
	}
	if c.Enroll.Quality <= 0 || c.Enroll.Quality > 1 {
		return fmt.Errorf("enroll.quality must be between 0 and 1, got %g", c.Enroll.Quality)
	}
	if c.Enroll.AutoCount < 1 {
		return fmt.Errorf("enroll.auto_count must be >= 1, got %d", c.Enroll.AutoCount)
	}
	if c.Enroll.AutoDelay < 0 {
		return errors.New("enroll.auto_delay must not be negative")
	}
	return nil
}
