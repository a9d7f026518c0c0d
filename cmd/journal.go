package cmd

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/rollcall/internal/store"
	"github.com/rs/zerolog/log"
)

const journalQueueSize = 64

// journalWriter drains records into the journal on its own goroutine so a
// slow database never holds up rendering.
type journalWriter struct {
	j       store.Journal
	records chan store.Record
	done    chan struct{}
	dropped atomic.Int64
}

func newJournalWriter(j store.Journal) *journalWriter {
	w := &journalWriter{j: j, records: make(chan store.Record, journalQueueSize), done: make(chan struct{})}
	go w.run()
	return w
}

func (w *journalWriter) run() {
	defer close(w.done)
	for r := range w.records {
		// Entries still in the queue at Ctrl+C are written anyway
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.j.Append(ctx, r); err != nil {
			log.Warn().Err(err).Str("session", r.Session).Msg("failed to journal entry")
		}
		cancel()
	}
}

// Add queues a record without blocking. When the queue is full the record is
// dropped with a warning. A nil writer ignores it.
func (w *journalWriter) Add(r store.Record) {
	if w == nil {
		return
	}
	select {
	case w.records <- r:
	default:
		w.dropped.Add(1)
		log.Warn().Str("session", r.Session).Int("seq", r.Seq).Msg("journal queue full, entry dropped")
	}
}

// Dropped reports how many records were discarded because the queue was full.
func (w *journalWriter) Dropped() int64 {
	return w.dropped.Load()
}

// Close flushes the queue and waits for the last write.
func (w *journalWriter) Close() {
	if w == nil {
		return
	}
	close(w.records)
	<-w.done
}
