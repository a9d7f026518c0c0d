package store

import (
	"testing"
	"time"
)

func TestLoggedAtDefaultsToNow(t *testing.T) {
	before := time.Now()
	got := Record{Message: "Stopped scanning"}.loggedAt()
	if got.Before(before) || time.Since(got) > time.Minute {
		t.Errorf("unset timestamp should default to now, got %v", got)
	}

	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	if got := (Record{At: at}).loggedAt(); !got.Equal(at) {
		t.Errorf("explicit timestamp changed: %v", got)
	}
}
