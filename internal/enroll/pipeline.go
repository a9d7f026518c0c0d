// Package enroll drives the registration workflow: single or batch sample
// capture for one identity, each successful capture path followed by a
// training run on the backend.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andresmejia3/rollcall/internal/camera"
	"github.com/andresmejia3/rollcall/internal/client"
	"github.com/andresmejia3/rollcall/internal/encoder"
	"github.com/andresmejia3/rollcall/internal/gate"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/rs/zerolog/log"
)

// ErrBusy is returned when an action is attempted while another one holds the gate.
var ErrBusy = gate.ErrBusy

// Defaults for the auto-capture path.
const (
	DefaultAutoCount = 30
	DefaultAutoDelay = 300 * time.Millisecond
)

const (
	msgMissingIdentity = "Enter user id and name."
	msgCapturing       = "Capturing image..."
	msgSaveFailed      = "Error saving image"
	msgCaptureFailed   = "Capture error"
	msgTraining        = "Training model — please wait..."
	msgTrainFailed     = "Training failed"
)

// ValidationError reports identity fields left empty.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return msgMissingIdentity
}

// Backend is the part of the recognition backend the pipeline needs.
type Backend interface {
	SaveImage(ctx context.Context, id types.Identity, frame encoder.EncodedFrame) (client.SaveResult, error)
	Train(ctx context.Context) (client.TrainResult, error)
}

// Acquirer opens the frame source on a manual retry.
type Acquirer func(ctx context.Context) (*camera.Source, error)

// Config tunes the pipeline. Zero values fall back to the defaults.
type Config struct {
	Quality   float64
	AutoCount int
	AutoDelay time.Duration
}

// Report summarizes one accepted invocation.
type Report struct {
	Attempts int
	Captured int
	TrainRan bool
	Trained  bool
	Final    Status
}

// Pipeline is the registration workflow of one kiosk. All three actions
// share a single gate.
type Pipeline struct {
	cfg     Config
	backend Backend
	sink    StatusSink
	acquire Acquirer
	gate    gate.Gate

	mu     sync.Mutex
	source *camera.Source
}

// New builds a pipeline. sink may be nil.
func New(backend Backend, sink StatusSink, acquire Acquirer, cfg Config) *Pipeline {
	if cfg.Quality <= 0 {
		cfg.Quality = encoder.EnrollmentQuality
	}
	if cfg.AutoCount <= 0 {
		cfg.AutoCount = DefaultAutoCount
	}
	if cfg.AutoDelay < 0 {
		cfg.AutoDelay = 0
	}
	if sink == nil {
		sink = SinkFunc(func(Status) {})
	}
	return &Pipeline{cfg: cfg, backend: backend, sink: sink, acquire: acquire}
}

// GateState exposes the gate for observers.
func (p *Pipeline) GateState() gate.State {
	return p.gate.State()
}

// SetSource installs an already acquired frame source.
func (p *Pipeline) SetSource(src *camera.Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = src
}

// Source returns the active frame source, or nil.
func (p *Pipeline) Source() *camera.Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// AcquireCamera tries to open the frame source if none is active. A failure
// is shown on the status line and returned.
func (p *Pipeline) AcquireCamera(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source != nil {
		return nil
	}
	if p.acquire == nil {
		return fmt.Errorf("%w: no frame source", camera.ErrDeviceUnavailable)
	}
	src, err := p.acquire(ctx)
	if err != nil {
		p.show(types.SeverityDanger, false, "Camera error: "+err.Error())
		return err
	}
	p.source = src
	return nil
}

// CaptureOne saves one sample for id and, if the backend accepts it, trains.
func (p *Pipeline) CaptureOne(ctx context.Context, id types.Identity) (Report, error) {
	src, err := p.preflight(id)
	if err != nil {
		return Report{}, err
	}
	ticket, ok := p.gate.TryAcquire()
	if !ok {
		return Report{}, ErrBusy
	}
	defer ticket.Release()

	id = id.Trimmed()
	p.show(types.SeverityInfo, true, msgCapturing)

	rep := Report{Attempts: 1}
	msg, saved := p.saveOne(ctx, src, id, msgSaveFailed)
	if !saved {
		rep.Final = p.show(types.SeverityDanger, false, msg)
		return rep, nil
	}
	rep.Captured = 1
	p.show(types.SeveritySuccess, false, msg)

	rep.TrainRan = true
	rep.Trained, rep.Final = p.train(ctx, true)
	return rep, nil
}

// AutoCapture saves a batch of samples for id, one after another with a
// short pause for the subject to move. The first rejected sample ends the
// batch without training.
func (p *Pipeline) AutoCapture(ctx context.Context, id types.Identity) (Report, error) {
	src, err := p.preflight(id)
	if err != nil {
		return Report{}, err
	}
	ticket, ok := p.gate.TryAcquire()
	if !ok {
		return Report{}, ErrBusy
	}
	defer ticket.Release()

	id = id.Trimmed()
	total := p.cfg.AutoCount
	p.show(types.SeverityInfo, true, fmt.Sprintf("Auto-capturing %d images... Move head slowly.", total))

	var rep Report
	for i := 1; i <= total; i++ {
		if i > 1 && p.cfg.AutoDelay > 0 {
			if err := sleep(ctx, p.cfg.AutoDelay); err != nil {
				rep.Final = p.show(types.SeverityDanger, false, msgCaptureFailed)
				return rep, nil
			}
		}

		rep.Attempts++
		msg, saved := p.saveOne(ctx, src, id, msgCaptureFailed)
		if !saved {
			log.Warn().Int("sample", i).Int("total", total).Str("reason", msg).Msg("auto-capture aborted")
			rep.Final = p.show(types.SeverityDanger, false, msg)
			return rep, nil
		}
		rep.Captured++
		p.sink.Show(Status{
			Message:  fmt.Sprintf("Captured %d/%d", i, total),
			Severity: types.SeverityInfo,
			Spinner:  true,
			Done:     i,
			Total:    total,
		})
	}

	p.show(types.SeveritySuccess, true, fmt.Sprintf("Auto-capture complete (%d/%d). Training...", rep.Captured, total))
	rep.TrainRan = true
	rep.Trained, rep.Final = p.train(ctx, true)
	return rep, nil
}

// Train rebuilds the model on demand.
func (p *Pipeline) Train(ctx context.Context) (Report, error) {
	ticket, ok := p.gate.TryAcquire()
	if !ok {
		return Report{}, ErrBusy
	}
	defer ticket.Release()

	rep := Report{TrainRan: true}
	rep.Trained, rep.Final = p.train(ctx, false)
	return rep, nil
}

// preflight checks everything that must hold before the gate is engaged.
func (p *Pipeline) preflight(id types.Identity) (*camera.Source, error) {
	if !id.Complete() {
		t := id.Trimmed()
		verr := &ValidationError{}
		if t.ID == "" {
			verr.Missing = append(verr.Missing, "user_id")
		}
		if t.Name == "" {
			verr.Missing = append(verr.Missing, "user_name")
		}
		p.sink.Show(Status{Message: msgMissingIdentity, Severity: types.SeverityWarning, Prompt: true})
		return nil, verr
	}

	src := p.Source()
	if src == nil {
		p.show(types.SeverityDanger, false, "Camera error: "+camera.ErrDeviceUnavailable.Error())
		return nil, fmt.Errorf("%w: no active frame source", camera.ErrDeviceUnavailable)
	}
	return src, nil
}

// saveOne captures and submits one sample. It returns the message to show
// and whether the backend accepted the sample.
func (p *Pipeline) saveOne(ctx context.Context, src *camera.Source, id types.Identity, fallback string) (string, bool) {
	frame := encoder.Encode(src.CurrentFrame(), p.cfg.Quality)
	res, err := p.backend.SaveImage(ctx, id, frame)
	if err != nil {
		log.Error().Err(err).Str("user_id", id.ID).Msg("save image failed")
		return fallback, false
	}

	switch r := res.(type) {
	case client.Saved:
		return r.Message, true
	case client.SaveRejected:
		if r.Message == "" {
			return fallback, false
		}
		return r.Message, false
	default:
		return fallback, false
	}
}

// train is the single exit of every accepted invocation that got this far.
func (p *Pipeline) train(ctx context.Context, auto bool) (bool, Status) {
	p.show(types.SeverityInfo, true, msgTraining)

	res, err := p.backend.Train(ctx)
	if err != nil {
		cause := err
		var te *client.TransportError
		if errors.As(err, &te) {
			cause = te.Err
		}
		log.Error().Err(err).Msg("train failed")
		return false, p.show(types.SeverityDanger, false, "Training error: "+cause.Error())
	}

	switch r := res.(type) {
	case client.Trained:
		msg := "Training complete!"
		if auto {
			msg += " (Auto)"
		}
		return true, p.show(types.SeveritySuccess, false, msg)
	case client.TrainRejected:
		msg := r.Message
		if msg == "" {
			msg = msgTrainFailed
		}
		return false, p.show(types.SeverityDanger, false, msg)
	default:
		return false, p.show(types.SeverityDanger, false, msgTrainFailed)
	}
}

func (p *Pipeline) show(sev types.Severity, spinner bool, msg string) Status {
	s := Status{Message: msg, Severity: sev, Spinner: spinner}
	p.sink.Show(s)
	return s
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
