package enroll

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/andresmejia3/rollcall/internal/camera"
	"github.com/andresmejia3/rollcall/internal/client"
	"github.com/andresmejia3/rollcall/internal/encoder"
	"github.com/andresmejia3/rollcall/internal/gate"
	"github.com/andresmejia3/rollcall/internal/types"
)

type stillDevice struct{}

func (stillDevice) Frame() (image.Image, bool) { return image.NewRGBA(image.Rect(0, 0, 16, 12)), true }
func (stillDevice) Close() error                { return nil }

// fakeBackend records calls. save decides the outcome of the n-th save (1-based).
type fakeBackend struct {
	mu         sync.Mutex
	saves      int
	trains     int
	lastID     types.Identity
	save       func(n int) (client.SaveResult, error)
	train      func() (client.TrainResult, error)
	gateDuring []gate.State
	p          *Pipeline
	block      chan struct{}
}

func (f *fakeBackend) SaveImage(ctx context.Context, id types.Identity, frame encoder.EncodedFrame) (client.SaveResult, error) {
	f.mu.Lock()
	f.saves++
	n := f.saves
	f.lastID = id
	if f.p != nil {
		f.gateDuring = append(f.gateDuring, f.p.GateState())
	}
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	if f.save == nil {
		return client.Saved{Message: "saved"}, nil
	}
	return f.save(n)
}

func (f *fakeBackend) Train(ctx context.Context) (client.TrainResult, error) {
	f.mu.Lock()
	f.trains++
	if f.p != nil {
		f.gateDuring = append(f.gateDuring, f.p.GateState())
	}
	f.mu.Unlock()

	if f.train == nil {
		return client.Trained{Message: "ok"}, nil
	}
	return f.train()
}

func (f *fakeBackend) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves, f.trains
}

var alice = types.Identity{ID: "7", Name: "Alice"}

func newPipeline(backend *fakeBackend, cfg Config) (*Pipeline, *Recorder) {
	rec := &Recorder{}
	p := New(backend, rec, nil, cfg)
	p.SetSource(camera.FromDevice(stillDevice{}))
	backend.p = p
	return p, rec
}

func messages(rec *Recorder) []string {
	var out []string
	for _, s := range rec.All() {
		out = append(out, s.Message)
	}
	return out
}

func TestCaptureOneThenTrain(t *testing.T) {
	backend := &fakeBackend{
		save: func(int) (client.SaveResult, error) { return client.Saved{Message: "Saved image #1", Count: 1}, nil },
	}
	p, rec := newPipeline(backend, Config{})

	rep, err := p.CaptureOne(context.Background(), types.Identity{ID: " 7 ", Name: " Alice "})
	if err != nil {
		t.Fatalf("CaptureOne failed: %v", err)
	}
	if !rep.Trained || rep.Captured != 1 {
		t.Errorf("unexpected report %+v", rep)
	}

	want := []string{"Capturing image...", "Saved image #1", "Training model — please wait...", "Training complete! (Auto)"}
	got := messages(rec)
	if len(got) != len(want) {
		t.Fatalf("got statuses %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status %d = %q, want %q", i, got[i], want[i])
		}
	}
	if backend.lastID != alice {
		t.Errorf("identity not trimmed before submission: %+v", backend.lastID)
	}
	for i, st := range backend.gateDuring {
		if st != gate.Busy {
			t.Errorf("call %d ran with gate %s", i, st)
		}
	}
	if p.GateState() != gate.Idle {
		t.Error("gate should be idle once training settled")
	}
}

func TestCaptureOneTrainRejected(t *testing.T) {
	backend := &fakeBackend{
		train: func() (client.TrainResult, error) { return client.TrainRejected{Message: "insufficient samples"}, nil },
	}
	p, rec := newPipeline(backend, Config{})

	rep, err := p.CaptureOne(context.Background(), alice)
	if err != nil {
		t.Fatalf("CaptureOne failed: %v", err)
	}
	last, _ := rec.Last()
	if last.Message != "insufficient samples" || last.Severity != types.SeverityDanger {
		t.Errorf("unexpected final status %+v", last)
	}
	if rep.Trained || !rep.TrainRan {
		t.Errorf("unexpected report %+v", rep)
	}
	if p.GateState() != gate.Idle {
		t.Error("gate should be idle after a rejected training")
	}
}

func TestCaptureOneSaveFailureSkipsTraining(t *testing.T) {
	tests := []struct {
		name string
		save func(int) (client.SaveResult, error)
		want string
	}{
		{"rejected", func(int) (client.SaveResult, error) { return client.SaveRejected{Message: "No face detected"}, nil }, "No face detected"},
		{"rejected without message", func(int) (client.SaveResult, error) { return client.SaveRejected{}, nil }, "Error saving image"},
		{"transport", func(int) (client.SaveResult, error) {
			return nil, &client.TransportError{Endpoint: client.EndpointSaveImage, Err: errors.New("connection reset")}
		}, "Error saving image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{save: tt.save}
			p, rec := newPipeline(backend, Config{})

			rep, err := p.CaptureOne(context.Background(), alice)
			if err != nil {
				t.Fatalf("CaptureOne failed: %v", err)
			}
			if _, trains := backend.counts(); trains != 0 {
				t.Errorf("training ran after a failed capture")
			}
			if rep.Final.Message != tt.want {
				t.Errorf("final status %q, want %q", rep.Final.Message, tt.want)
			}
			if last, _ := rec.Last(); last != rep.Final {
				t.Errorf("last published status %+v differs from report %+v", last, rep.Final)
			}
			if p.GateState() != gate.Idle {
				t.Error("gate left busy")
			}
		})
	}
}

func TestAutoCaptureCallCountMatchesFirstFailure(t *testing.T) {
	for _, failAt := range []int{1, 7, 30, 0} {
		backend := &fakeBackend{
			save: func(n int) (client.SaveResult, error) {
				if n == failAt {
					return client.SaveRejected{Message: "face not detected"}, nil
				}
				return client.Saved{Message: "ok", Count: n}, nil
			},
		}
		p, rec := newPipeline(backend, Config{AutoDelay: time.Microsecond})

		rep, err := p.AutoCapture(context.Background(), alice)
		if err != nil {
			t.Fatalf("failAt=%d: AutoCapture failed: %v", failAt, err)
		}

		saves, trains := backend.counts()
		wantSaves, wantTrains := failAt, 0
		if failAt == 0 {
			wantSaves, wantTrains = DefaultAutoCount, 1
		}
		if saves != wantSaves || trains != wantTrains {
			t.Errorf("failAt=%d: got %d saves and %d trains, want %d and %d", failAt, saves, trains, wantSaves, wantTrains)
		}
		if p.GateState() != gate.Idle {
			t.Errorf("failAt=%d: gate left busy", failAt)
		}

		last, _ := rec.Last()
		if failAt != 0 && last.Message != "face not detected" {
			t.Errorf("failAt=%d: final status %q", failAt, last.Message)
		}
		if failAt == 0 && (last.Message != "Training complete! (Auto)" || rep.Captured != DefaultAutoCount) {
			t.Errorf("final status %q, captured %d", last.Message, rep.Captured)
		}
	}
}

func TestAutoCaptureStatusSequence(t *testing.T) {
	backend := &fakeBackend{}
	p, rec := newPipeline(backend, Config{AutoCount: 3})

	if _, err := p.AutoCapture(context.Background(), alice); err != nil {
		t.Fatalf("AutoCapture failed: %v", err)
	}

	want := []string{
		"Auto-capturing 3 images... Move head slowly.",
		"Captured 1/3",
		"Captured 2/3",
		"Captured 3/3",
		"Auto-capture complete (3/3). Training...",
		"Training model — please wait...",
		"Training complete! (Auto)",
	}
	got := messages(rec)
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status %d = %q, want %q", i, got[i], want[i])
		}
	}

	var progress []int
	for _, s := range rec.All() {
		if s.Total > 0 {
			if s.Total != 3 {
				t.Errorf("unexpected total %d", s.Total)
			}
			progress = append(progress, s.Done)
		}
	}
	if len(progress) != 3 || progress[0] != 1 || progress[2] != 3 {
		t.Errorf("unexpected progress updates %v", progress)
	}
}

func TestAutoCaptureSpacing(t *testing.T) {
	backend := &fakeBackend{}
	p, _ := newPipeline(backend, Config{AutoCount: 4, AutoDelay: 20 * time.Millisecond})

	start := time.Now()
	if _, err := p.AutoCapture(context.Background(), alice); err != nil {
		t.Fatalf("AutoCapture failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("expected at least three pauses between samples, took %s", elapsed)
	}
}

func TestPreconditionsLeaveGateAndBackendAlone(t *testing.T) {
	t.Run("missing user id", func(t *testing.T) {
		backend := &fakeBackend{}
		p, rec := newPipeline(backend, Config{})

		_, err := p.CaptureOne(context.Background(), types.Identity{ID: "  ", Name: "Alice"})
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if len(verr.Missing) != 1 || verr.Missing[0] != "user_id" {
			t.Errorf("unexpected missing fields %v", verr.Missing)
		}
		if saves, trains := backend.counts(); saves+trains != 0 {
			t.Error("network call made despite missing identity")
		}
		if last, _ := rec.Last(); !last.Prompt || last.Message != "Enter user id and name." {
			t.Errorf("expected an operator prompt, got %+v", last)
		}
		if p.GateState() != gate.Idle {
			t.Error("gate engaged on validation failure")
		}
	})

	t.Run("camera unavailable", func(t *testing.T) {
		backend := &fakeBackend{}
		p := New(backend, nil, nil, Config{})
		backend.p = p

		for _, action := range []func(context.Context, types.Identity) (Report, error){p.CaptureOne, p.AutoCapture} {
			_, err := action(context.Background(), alice)
			if !errors.Is(err, camera.ErrDeviceUnavailable) {
				t.Errorf("expected ErrDeviceUnavailable, got %v", err)
			}
		}
		if saves, trains := backend.counts(); saves+trains != 0 {
			t.Error("network call made without a camera")
		}
		if p.GateState() != gate.Idle {
			t.Error("gate engaged without a camera")
		}
	})
}

func TestOverlappingInvocationsAreRejected(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	p, _ := newPipeline(backend, Config{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.CaptureOne(context.Background(), alice)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for p.GateState() != gate.Busy {
		if time.Now().After(deadline) {
			t.Fatal("first invocation never engaged the gate")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := p.Train(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("manual train during capture: expected ErrBusy, got %v", err)
	}
	if _, err := p.AutoCapture(context.Background(), alice); !errors.Is(err, ErrBusy) {
		t.Errorf("auto capture during capture: expected ErrBusy, got %v", err)
	}

	close(backend.block)
	<-done

	if saves, trains := backend.counts(); saves != 1 || trains != 1 {
		t.Errorf("rejected invocations must not reach the backend: %d saves, %d trains", saves, trains)
	}
	if p.GateState() != gate.Idle {
		t.Error("gate left busy")
	}
}

func TestManualTrain(t *testing.T) {
	tests := []struct {
		name  string
		train func() (client.TrainResult, error)
		want  string
	}{
		{"success", func() (client.TrainResult, error) { return client.Trained{}, nil }, "Training complete!"},
		{"rejected", func() (client.TrainResult, error) { return client.TrainRejected{}, nil }, "Training failed"},
		{"transport", func() (client.TrainResult, error) {
			return nil, &client.TransportError{Endpoint: client.EndpointTrain, Err: errors.New("timeout")}
		}, "Training error: timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{train: tt.train}
			p := New(backend, nil, nil, Config{})

			rep, err := p.Train(context.Background())
			if err != nil {
				t.Fatalf("Train failed: %v", err)
			}
			if rep.Final.Message != tt.want {
				t.Errorf("got %q, want %q", rep.Final.Message, tt.want)
			}
			if saves, _ := backend.counts(); saves != 0 {
				t.Error("manual train must not capture")
			}
			if p.GateState() != gate.Idle {
				t.Error("gate left busy")
			}
		})
	}
}

func TestAcquireCameraRetry(t *testing.T) {
	attempts := 0
	acquire := func(ctx context.Context) (*camera.Source, error) {
		attempts++
		if attempts == 1 {
			return nil, camera.ErrDeviceUnavailable
		}
		return camera.FromDevice(stillDevice{}), nil
	}
	rec := &Recorder{}
	p := New(&fakeBackend{}, rec, acquire, Config{})

	if err := p.AcquireCamera(context.Background()); !errors.Is(err, camera.ErrDeviceUnavailable) {
		t.Fatalf("expected first acquisition to fail, got %v", err)
	}
	if last, _ := rec.Last(); last.Severity != types.SeverityDanger {
		t.Errorf("camera failure not shown: %+v", last)
	}
	if err := p.AcquireCamera(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if err := p.AcquireCamera(context.Background()); err != nil || attempts != 2 {
		t.Errorf("acquiring with an active source should be a no-op (attempts=%d, err=%v)", attempts, err)
	}
	if _, err := p.CaptureOne(context.Background(), alice); err != nil {
		t.Errorf("capture after retry failed: %v", err)
	}
}
