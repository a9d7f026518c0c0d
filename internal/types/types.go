package types

import "strings"

// Identity holds the enrollment fields typed at the registration console.
type Identity struct {
	ID   string
	Name string
}

// Trimmed returns the identity with surrounding whitespace removed from both fields.
func (i Identity) Trimmed() Identity {
	return Identity{ID: strings.TrimSpace(i.ID), Name: strings.TrimSpace(i.Name)}
}

// Complete reports whether both fields are present after trimming.
func (i Identity) Complete() bool {
	t := i.Trimmed()
	return t.ID != "" && t.Name != ""
}

// Severity classifies a status line or log entry the way the kiosk styles it.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeveritySuccess   Severity = "success"
	SeverityWarning   Severity = "warning"
	SeverityDanger    Severity = "danger"
	SeveritySecondary Severity = "secondary"
)
