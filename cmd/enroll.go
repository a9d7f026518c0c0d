package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/andresmejia3/rollcall/internal/camera"
	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/andresmejia3/rollcall/internal/enroll"
	"github.com/andresmejia3/rollcall/internal/logging"
	"github.com/andresmejia3/rollcall/internal/panel"
	"github.com/andresmejia3/rollcall/internal/store"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollOpts struct {
	id        string
	name      string
	once      bool
	auto      bool
	train     bool
	count     int
	delay     time.Duration
	panelAddr string
}

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Register a person by capturing face samples and training the model",
	Long: `Without --once, --auto or --train an interactive console starts. Console commands:
  id <value>     set the user id
  name <value>   set the display name
  capture        save one sample, then train
  auto           save a batch of samples, then train
  train          train the model now
  camera         retry opening the camera
  status         show the current identity and gate
  quit           leave once the running action settles`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEnroll(cmd)
	},
}

func init() {
	enrollCmd.Flags().StringVar(&enrollOpts.id, "id", "", "User id")
	enrollCmd.Flags().StringVar(&enrollOpts.name, "name", "", "Display name")
	enrollCmd.Flags().BoolVar(&enrollOpts.once, "once", false, "Capture a single sample, train and exit")
	enrollCmd.Flags().BoolVar(&enrollOpts.auto, "auto", false, "Auto-capture a batch of samples, train and exit")
	enrollCmd.Flags().BoolVar(&enrollOpts.train, "train", false, "Train the model and exit")
	enrollCmd.Flags().IntVarP(&enrollOpts.count, "count", "n", 0, "Samples per auto-capture (default 30)")
	enrollCmd.Flags().DurationVar(&enrollOpts.delay, "delay", 0, "Pause between auto-capture samples (default 300ms)")
	enrollCmd.Flags().StringVar(&enrollOpts.panelAddr, "panel", "", "Serve the status panel on this address (e.g. :8090)")
	enrollCmd.MarkFlagsMutuallyExclusive("once", "auto", "train")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if cmd.Flags().Changed("count") {
		cfg.Enroll.AutoCount = enrollOpts.count
	}
	if cmd.Flags().Changed("delay") {
		cfg.Enroll.AutoDelay = config.Duration(enrollOpts.delay)
	}
	if cmd.Flags().Changed("panel") {
		cfg.Panel.Addr = enrollOpts.panelAddr
	}
	if err := cfg.Validate(); err != nil {
		utils.ShowError("Invalid enrollment settings", err, nil)
		return err
	}

	c, err := newClient()
	if err != nil {
		utils.ShowError("Backend client setup failed", err, nil)
		return err
	}

	var jw *journalWriter
	if j, _ := openJournal(ctx, false); j != nil {
		jw = newJournalWriter(j)
		defer jw.Close()
	}

	recorder := &enroll.Recorder{}
	printer := newStatusPrinter(cmd.OutOrStdout(), logging.IsTerminal(os.Stderr), jw, uuid.NewString())
	sink := enroll.SinkFunc(func(s enroll.Status) {
		recorder.Show(s)
		printer.Show(s)
	})

	pipeline := enroll.New(c, sink, acquireCamera, enroll.Config{
		Quality:   cfg.Enroll.Quality,
		AutoCount: cfg.Enroll.AutoCount,
		AutoDelay: cfg.Enroll.AutoDelay.Std(),
	})

	// Manual training needs no camera
	if !enrollOpts.train {
		if err := pipeline.AcquireCamera(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "💡 Fix the camera and type \"camera\" to retry.")
		}
		defer func() {
			if src := pipeline.Source(); src != nil {
				src.Close()
			}
		}()
	}

	if cfg.Panel.Addr != "" {
		srv := panel.NewServer(cfg.Panel.Addr, panel.Views{Pipeline: pipeline, Status: recorder})
		addr, _, err := srv.Start()
		if err != nil {
			utils.ShowError("Status panel failed", err, nil)
			return err
		}
		fmt.Fprintf(os.Stderr, "🖥️  Status panel on http://%s/api/status\n", addr)
		defer shutdownPanel(srv)
	}

	id := types.Identity{ID: enrollOpts.id, Name: enrollOpts.name}

	var rep enroll.Report
	switch {
	case enrollOpts.once:
		rep, err = pipeline.CaptureOne(ctx, id)
	case enrollOpts.auto:
		rep, err = pipeline.AutoCapture(ctx, id)
	case enrollOpts.train:
		rep, err = pipeline.Train(ctx)
	default:
		console := &enrollConsole{pipeline: pipeline, out: cmd.ErrOrStderr(), id: id}
		console.Run(ctx, cmd.InOrStdin())
		return nil
	}

	if err != nil {
		return err
	}
	if !rep.Trained {
		return fmt.Errorf("enrollment did not complete: %s", rep.Final.Message)
	}
	return nil
}

// enrollConsole maps typed commands to pipeline actions. Actions run in the
// background so a command typed while one is running is refused by the gate.
type enrollConsole struct {
	pipeline *enroll.Pipeline
	out      io.Writer

	mu sync.Mutex
	id types.Identity
	wg sync.WaitGroup
}

func (c *enrollConsole) Run(ctx context.Context, in io.Reader) {
	fmt.Fprintln(c.out, "⌨️  Commands: id <value>, name <value>, capture, auto, train, camera, status, quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	// Ctrl+C cancels ctx while the reader may still sit in a blocking read
	defer c.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || !c.Handle(ctx, line) {
				return
			}
		}
	}
}

// Handle processes one console line and reports whether to keep reading.
func (c *enrollConsole) Handle(ctx context.Context, line string) bool {
	verb, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(verb) {
	case "":
	case "id":
		c.mu.Lock()
		c.id.ID = arg
		c.mu.Unlock()
	case "name":
		c.mu.Lock()
		c.id.Name = arg
		c.mu.Unlock()
	case "capture":
		c.dispatch(func(id types.Identity) (enroll.Report, error) { return c.pipeline.CaptureOne(ctx, id) })
	case "auto":
		c.dispatch(func(id types.Identity) (enroll.Report, error) { return c.pipeline.AutoCapture(ctx, id) })
	case "train":
		c.dispatch(func(types.Identity) (enroll.Report, error) { return c.pipeline.Train(ctx) })
	case "camera":
		if err := c.pipeline.AcquireCamera(ctx); err == nil {
			fmt.Fprintln(c.out, "📷 Camera ready.")
		}
	case "status":
		c.mu.Lock()
		id := c.id
		c.mu.Unlock()
		fmt.Fprintf(c.out, "ℹ️  id=%q name=%q gate=%s camera=%v\n", id.ID, id.Name, c.pipeline.GateState(), c.pipeline.Source() != nil)
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintln(c.out, "⌨️  Commands: id <value>, name <value>, capture, auto, train, camera, status, quit")
	}
	return true
}

// Wait blocks until every dispatched action has settled.
func (c *enrollConsole) Wait() {
	c.wg.Wait()
}

func (c *enrollConsole) dispatch(action func(types.Identity) (enroll.Report, error)) {
	c.mu.Lock()
	id := c.id
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, err := action(id)
		switch {
		case err == nil:
		case errors.Is(err, enroll.ErrBusy):
			fmt.Fprintf(c.out, "⏳ Busy: %v\n", err)
		case errors.Is(err, camera.ErrDeviceUnavailable):
			fmt.Fprintln(c.out, "💡 Type \"camera\" to retry opening the camera.")
		}
	}()
}

// statusPrinter renders pipeline statuses. Auto-capture progress goes to a
// progress bar on a terminal; settled statuses are journaled.
type statusPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	useBar  bool
	bar     *progressbar.ProgressBar
	jw      *journalWriter
	session string
	seq     int
}

func newStatusPrinter(out io.Writer, useBar bool, jw *journalWriter, session string) *statusPrinter {
	return &statusPrinter{out: out, useBar: useBar, jw: jw, session: session}
}

func (p *statusPrinter) Show(s enroll.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.Total > 0 && p.useBar {
		if p.bar == nil {
			p.bar = progressbar.NewOptions(s.Total,
				progressbar.OptionSetDescription("📸 Capturing"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)
		}
		p.bar.Set(s.Done)
		if s.Done >= s.Total {
			p.bar.Finish()
			fmt.Fprintln(os.Stderr)
			p.bar = nil
		}
		return
	}
	if p.bar != nil {
		// The batch was aborted before reaching its total
		p.bar.Exit()
		fmt.Fprintln(os.Stderr)
		p.bar = nil
	}

	fmt.Fprintln(p.out, formatStatus(s))

	if !s.Spinner && !s.Prompt {
		p.seq++
		p.jw.Add(store.Record{
			Session:  p.session,
			Workflow: store.WorkflowEnroll,
			Seq:      p.seq,
			At:       time.Now(),
			Severity: string(s.Severity),
			Message:  s.Message,
		})
	}
}

func formatStatus(s enroll.Status) string {
	switch {
	case s.Prompt:
		return "⚠️  " + s.Message
	case s.Spinner:
		return "⏳ " + s.Message
	}
	icon, ok := severityIcons[s.Severity]
	if !ok {
		icon = "•"
	}
	return icon + " " + s.Message
}
