package attendance

import (
	"sync"
	"time"

	"github.com/andresmejia3/rollcall/internal/types"
)

// Entry is one line of the scan log.
type Entry struct {
	Seq      int            `json:"seq"`
	Session  string         `json:"session"`
	At       time.Time      `json:"at"`
	Severity types.Severity `json:"severity"`
	Text     string         `json:"text"`
}

// Summary is the "currently recognized" panel.
type Summary struct {
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Confidence float64   `json:"confidence"`
	Marked     bool      `json:"marked"`
	At         time.Time `json:"at"`
}

// Board holds the visible state of an attendance session. Entries are kept
// newest first and are never pruned.
type Board struct {
	mu      sync.RWMutex
	entries []Entry
	summary *Summary
	seq     int

	notifyMu    sync.Mutex
	subscribers []func(Entry)
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{}
}

// Subscribe registers fn to be called with every entry pushed after this call.
// Subscribers are invoked one at a time, in push order.
func (b *Board) Subscribe(fn func(Entry)) {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Push prepends an entry and notifies subscribers.
func (b *Board) Push(e Entry) Entry {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	b.seq++
	e.Seq = b.seq
	b.entries = append(b.entries, Entry{})
	copy(b.entries[1:], b.entries)
	b.entries[0] = e
	b.mu.Unlock()

	for _, fn := range b.subscribers {
		fn(e)
	}
	return e
}

// Entries returns a snapshot of the log, newest first.
func (b *Board) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Entry(nil), b.entries...)
}

// Len returns the number of entries.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// SetSummary replaces the recognized panel.
func (b *Board) SetSummary(s Summary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summary = &s
}

// Summary returns the recognized panel, if anyone was recognized yet.
func (b *Board) Summary() (Summary, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.summary == nil {
		return Summary{}, false
	}
	return *b.summary, true
}
