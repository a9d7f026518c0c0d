// Package gate guards user-triggered workflow invocations against overlap.
package gate

import (
	"errors"
	"sync"
)

// ErrBusy is returned when an invocation is attempted while another holds the gate.
var ErrBusy = errors.New("another action is still in progress")

// State is the gate's position.
type State int

const (
	Idle State = iota
	Busy
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

// Gate is a two-state mutual-exclusion flag. The zero value is an Idle gate.
type Gate struct {
	mu    sync.Mutex
	state State
	gen   uint64
}

// Ticket proves ownership of a Busy gate. Only the ticket handed out by
// TryAcquire can move the gate back to Idle.
type Ticket struct {
	g    *Gate
	gen  uint64
	once sync.Once
}

// TryAcquire moves the gate from Idle to Busy. It returns false, and no
// ticket, if the gate is already Busy.
func (g *Gate) TryAcquire() (*Ticket, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Busy {
		return nil, false
	}
	g.state = Busy
	g.gen++
	return &Ticket{g: g, gen: g.gen}, true
}

// State returns the current position of the gate.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Release returns the gate to Idle. Calling it more than once is a no-op, and
// a stale ticket never clears a later invocation's Busy.
func (t *Ticket) Release() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.g.mu.Lock()
		defer t.g.mu.Unlock()
		if t.g.gen == t.gen {
			t.g.state = Idle
		}
	})
}
