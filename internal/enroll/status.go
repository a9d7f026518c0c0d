package enroll

import (
	"sync"

	"github.com/andresmejia3/rollcall/internal/types"
)

// Status is the registration status line.
type Status struct {
	Message  string         `json:"message"`
	Severity types.Severity `json:"severity"`
	Spinner  bool           `json:"spinner"`
	// Prompt marks an alert addressed to the operator rather than a status update.
	Prompt bool `json:"prompt,omitempty"`
	// Done and Total are set on auto-capture progress updates.
	Done  int `json:"done,omitempty"`
	Total int `json:"total,omitempty"`
}

// StatusSink receives every status the pipeline publishes, in order.
type StatusSink interface {
	Show(Status)
}

// SinkFunc adapts a function to StatusSink.
type SinkFunc func(Status)

func (f SinkFunc) Show(s Status) { f(s) }

// Recorder is a StatusSink that keeps every status it is shown.
type Recorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *Recorder) Show(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

// All returns the statuses seen so far, oldest first.
func (r *Recorder) All() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

// Last returns the most recent status.
func (r *Recorder) Last() (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return Status{}, false
	}
	return r.statuses[len(r.statuses)-1], true
}
