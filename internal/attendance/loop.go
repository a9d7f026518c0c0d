// Package attendance runs the attendance scan loop: on a fixed cadence it
// captures a frame, submits it for recognition and renders the outcome onto
// a Board.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/rollcall/internal/camera"
	"github.com/andresmejia3/rollcall/internal/client"
	"github.com/andresmejia3/rollcall/internal/encoder"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultPeriod is the scan cadence.
const DefaultPeriod = 3 * time.Second

const timeLayout = "15:04:05"

// Submitter sends an attendance frame to the recognition backend.
type Submitter interface {
	ProcessFrame(ctx context.Context, frame encoder.EncodedFrame) (client.FrameResult, error)
}

// Acquirer opens the frame source when the loop starts without one.
type Acquirer func(ctx context.Context) (*camera.Source, error)

// Config tunes the loop. Zero values fall back to the defaults.
type Config struct {
	Period  time.Duration
	Quality float64
	// SkipWhileInFlight drops a tick while an earlier submission is still
	// pending. Off by default: ticks fire on cadence regardless.
	SkipWhileInFlight bool
	Now               func() time.Time
}

// Loop is the Idle/Scanning state machine of the attendance workflow.
type Loop struct {
	cfg     Config
	sub     Submitter
	acquire Acquirer
	board   *Board

	mu      sync.Mutex
	source  *camera.Source
	ticker  *time.Ticker
	halt    chan struct{}
	session string

	inFlight atomic.Int32
	ticks    atomic.Int64
	skipped  atomic.Int64
	wg       sync.WaitGroup
}

// NewLoop wires a loop around a submitter. acquire may be nil when a source
// is provided with SetSource.
func NewLoop(sub Submitter, acquire Acquirer, cfg Config) *Loop {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Quality <= 0 {
		cfg.Quality = encoder.AttendanceQuality
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loop{cfg: cfg, sub: sub, acquire: acquire, board: NewBoard()}
}

// Board returns the loop's visible state.
func (l *Loop) Board() *Board { return l.board }

// SetSource installs an already acquired frame source.
func (l *Loop) SetSource(src *camera.Source) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.source = src
}

// Scanning reports whether the ticker is active.
func (l *Loop) Scanning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticker != nil
}

// Session returns the id of the current (or last) scanning session.
func (l *Loop) Session() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Stats returns how many ticks fired and how many were skipped.
func (l *Loop) Stats() (ticks, skipped int64) {
	return l.ticks.Load(), l.skipped.Load()
}

// Start moves the loop to Scanning. Without an active source one is
// acquired first; if that fails the loop stays Idle and the error is returned.
// Submissions run under ctx, so Stop does not abort them. Cancelling ctx
// stops the loop the same way Stop does.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.ticker != nil {
		l.mu.Unlock()
		return nil
	}
	src := l.source
	l.mu.Unlock()

	// The device may take seconds to come up; readers of the loop state must not wait on it
	var acquired *camera.Source
	if src == nil {
		if l.acquire == nil {
			return fmt.Errorf("%w: no frame source", camera.ErrDeviceUnavailable)
		}
		var err error
		if acquired, err = l.acquire(ctx); err != nil {
			return err
		}
	}

	l.mu.Lock()
	if acquired != nil {
		if l.source == nil {
			l.source = acquired
		} else {
			// A concurrent Start or SetSource won the race
			defer acquired.Close()
		}
	}
	if l.ticker != nil {
		l.mu.Unlock()
		return nil
	}

	l.session = uuid.NewString()
	l.ticker = time.NewTicker(l.cfg.Period)
	l.halt = make(chan struct{})
	session := l.session
	go l.run(ctx, l.ticker, l.halt, l.source, session)
	l.mu.Unlock()

	log.Info().Str("session", session).Dur("period", l.cfg.Period).Msg("scan loop started")
	l.push(session, types.SeverityInfo, fmt.Sprintf("Started scanning (every %gs)", l.cfg.Period.Seconds()))
	return nil
}

// Stop cancels the ticker. Submissions already in flight still render.
func (l *Loop) Stop() {
	l.stop(nil)
}

// stop halts the running ticker. A non-nil owner only stops that ticker, so
// a run goroutine that outlived its session cannot stop a newer one.
func (l *Loop) stop(owner *time.Ticker) {
	l.mu.Lock()
	if l.ticker == nil || (owner != nil && l.ticker != owner) {
		l.mu.Unlock()
		return
	}
	l.ticker.Stop()
	close(l.halt)
	l.ticker = nil
	l.halt = nil
	session := l.session
	l.mu.Unlock()

	log.Info().Str("session", session).Msg("scan loop stopped")
	l.push(session, types.SeveritySecondary, "Stopped scanning")
}

// Wait blocks until every in-flight submission has rendered.
func (l *Loop) Wait() {
	l.wg.Wait()
}

// Close stops the loop, drains in-flight submissions and releases the source.
func (l *Loop) Close() error {
	l.Stop()
	l.Wait()

	l.mu.Lock()
	src := l.source
	l.source = nil
	l.mu.Unlock()
	return src.Close()
}

func (l *Loop) run(ctx context.Context, ticker *time.Ticker, halt <-chan struct{}, src *camera.Source, session string) {
	for {
		select {
		case <-halt:
			return
		case <-ctx.Done():
			l.stop(ticker)
			return
		case <-ticker.C:
			// Stop may race a pending tick; halt wins.
			select {
			case <-halt:
				return
			default:
			}

			l.ticks.Add(1)
			if l.cfg.SkipWhileInFlight && l.inFlight.Load() > 0 {
				l.skipped.Add(1)
				log.Debug().Str("session", session).Msg("tick skipped, previous submission still in flight")
				continue
			}

			l.inFlight.Add(1)
			l.wg.Add(1)
			go func() {
				defer l.wg.Done()
				defer l.inFlight.Add(-1)
				l.cycle(ctx, src, session)
			}()
		}
	}
}

// cycle is one capture, encode, submit and render pass.
func (l *Loop) cycle(ctx context.Context, src *camera.Source, session string) {
	frame := encoder.Encode(src.CurrentFrame(), l.cfg.Quality)
	res, err := l.sub.ProcessFrame(ctx, frame)
	l.render(session, res, err)
}

func (l *Loop) render(session string, res client.FrameResult, err error) {
	now := l.cfg.Now()
	stamp := now.Format(timeLayout)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Debug().Err(err).Msg("submission cancelled")
			return
		}
		log.Error().Err(err).Str("session", session).Msg("process frame failed")
		l.push(session, types.SeverityDanger, fmt.Sprintf("%s — Error: server error", stamp))
		return
	}

	switch r := res.(type) {
	case client.Recognized:
		qualifier := "(already)"
		if r.Marked {
			qualifier = "(marked)"
		}
		l.board.SetSummary(Summary{UserID: r.UserID, Name: r.Name, Confidence: r.Confidence, Marked: r.Marked, At: now})
		l.push(session, types.SeveritySuccess, fmt.Sprintf("%s — %s %s conf:%.1f", stamp, r.Name, qualifier, r.Confidence))
	case client.Unknown:
		l.push(session, types.SeverityWarning, fmt.Sprintf("%s — Unknown (conf %.1f)", stamp, r.Confidence))
	case client.NoFace:
		log.Debug().Str("session", session).Msg("no face in frame")
	case client.FrameRejected:
		msg := r.Message
		if msg == "" {
			msg = "server error"
		}
		l.push(session, types.SeverityDanger, fmt.Sprintf("%s — Error: %s", stamp, msg))
	}
}

func (l *Loop) push(session string, sev types.Severity, text string) {
	l.board.Push(Entry{Session: session, At: l.cfg.Now(), Severity: sev, Text: text})
}
