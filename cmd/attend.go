package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/andresmejia3/rollcall/internal/attendance"
	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/andresmejia3/rollcall/internal/logging"
	"github.com/andresmejia3/rollcall/internal/panel"
	"github.com/andresmejia3/rollcall/internal/store"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
)

var attendOpts struct {
	period    time.Duration
	skip      bool
	panelAddr string
	duration  time.Duration
	noConsole bool
}

var attendCmd = &cobra.Command{
	Use:   "attend",
	Short: "Scan faces on a fixed cadence and mark attendance",
	Long: `Opens the camera and submits a frame to the recognition backend every scan period.
Type "stop", "start", "status" or "quit" on the console; Ctrl+C ends the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runAttend(cmd)
	},
}

func init() {
	attendCmd.Flags().DurationVarP(&attendOpts.period, "period", "p", 0, "Scan period (default 3s)")
	attendCmd.Flags().BoolVar(&attendOpts.skip, "skip-while-in-flight", false, "Skip a tick while the previous submission is still pending")
	attendCmd.Flags().StringVar(&attendOpts.panelAddr, "panel", "", "Serve the status panel on this address (e.g. :8090)")
	attendCmd.Flags().DurationVar(&attendOpts.duration, "duration", 0, "Stop scanning after this long (0 runs until interrupted)")
	attendCmd.Flags().BoolVar(&attendOpts.noConsole, "no-console", false, "Do not read console commands from stdin")
	rootCmd.AddCommand(attendCmd)
}

func runAttend(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if cmd.Flags().Changed("period") {
		cfg.Scan.Period = config.Duration(attendOpts.period)
	}
	if cmd.Flags().Changed("skip-while-in-flight") {
		cfg.Scan.SkipWhileInFlight = attendOpts.skip
	}
	if cmd.Flags().Changed("panel") {
		cfg.Panel.Addr = attendOpts.panelAddr
	}
	if cfg.Scan.Period <= 0 {
		err := fmt.Errorf("must be positive, got %s", cfg.Scan.Period)
		utils.ShowError("Invalid scan period", err, nil)
		return err
	}

	c, err := newClient()
	if err != nil {
		utils.ShowError("Backend client setup failed", err, nil)
		return err
	}

	// Opened before the loop so the writer outlives every late entry
	j, _ := openJournal(ctx, false)
	var jw *journalWriter
	if j != nil {
		jw = newJournalWriter(j)
		defer jw.Close()
	}

	loop := attendance.NewLoop(c, acquireCamera, attendance.Config{
		Period:            cfg.Scan.Period.Std(),
		Quality:           cfg.Scan.Quality,
		SkipWhileInFlight: cfg.Scan.SkipWhileInFlight,
	})
	defer loop.Close()

	// Eager acquisition; on failure Start retries once more before giving up.
	if src, err := acquireCamera(ctx); err != nil {
		utils.ShowError("Camera error", err, nil)
	} else {
		loop.SetSource(src)
	}

	out := cmd.OutOrStdout()
	loop.Board().Subscribe(func(e attendance.Entry) {
		printEntry(out, e)
		jw.Add(store.Record{
			Session:  e.Session,
			Workflow: store.WorkflowAttendance,
			Seq:      e.Seq,
			At:       e.At,
			Severity: string(e.Severity),
			Message:  e.Text,
		})
	})

	if cfg.Panel.Addr != "" {
		srv := panel.NewServer(cfg.Panel.Addr, panel.Views{Loop: loop})
		addr, _, err := srv.Start()
		if err != nil {
			utils.ShowError("Status panel failed", err, nil)
			return err
		}
		fmt.Fprintf(os.Stderr, "🖥️  Status panel on http://%s/api/status\n", addr)
		defer shutdownPanel(srv)
	}

	if err := loop.Start(ctx); err != nil {
		utils.ShowError("Failed to start scanning", err, nil)
		return err
	}

	runCtx := ctx
	if attendOpts.duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, attendOpts.duration)
		defer cancel()
	}

	quit := make(chan struct{})
	if !attendOpts.noConsole && logging.IsTerminal(os.Stdin) {
		fmt.Fprintln(os.Stderr, "⌨️  Commands: start, stop, status, quit")
		go func() {
			defer close(quit)
			attendConsole(ctx, os.Stdin, cmd.ErrOrStderr(), loop)
		}()
	}

	select {
	case <-runCtx.Done():
	case <-quit:
	}

	loop.Stop()
	fmt.Fprintln(os.Stderr, "⏳ Waiting for in-flight submissions...")
	loop.Wait()

	ticks, skipped := loop.Stats()
	fmt.Fprintf(os.Stderr, "🏁 Session %s ended: %d ticks, %d skipped, %d log entries.\n", shortID(loop.Session()), ticks, skipped, loop.Board().Len())
	return nil
}

// attendConsole reads operator commands until quit or EOF.
func attendConsole(ctx context.Context, in io.Reader, out io.Writer, loop *attendance.Loop) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "":
		case "start":
			if err := loop.Start(ctx); err != nil {
				fmt.Fprintf(out, "❌ Camera error: %v\n", err)
			}
		case "stop":
			loop.Stop()
		case "status":
			ticks, skipped := loop.Stats()
			state := "idle"
			if loop.Scanning() {
				state = "scanning"
			}
			fmt.Fprintf(out, "ℹ️  %s, %d ticks, %d skipped, %d log entries\n", state, ticks, skipped, loop.Board().Len())
		case "quit", "exit", "q":
			return
		default:
			fmt.Fprintln(out, "⌨️  Commands: start, stop, status, quit")
		}
	}
}

var severityIcons = map[types.Severity]string{
	types.SeverityInfo:      "▶️ ",
	types.SeveritySuccess:   "✅",
	types.SeverityWarning:   "❓",
	types.SeverityDanger:    "❌",
	types.SeveritySecondary: "⏹️ ",
}

func printEntry(w io.Writer, e attendance.Entry) {
	icon, ok := severityIcons[e.Severity]
	if !ok {
		icon = "•"
	}
	fmt.Fprintf(w, "%s %s\n", icon, e.Text)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
