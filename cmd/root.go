package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresmejia3/rollcall/internal/camera"
	"github.com/andresmejia3/rollcall/internal/client"
	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/andresmejia3/rollcall/internal/logging"
	"github.com/andresmejia3/rollcall/internal/store"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// cfg is the resolved configuration shared by subcommands
	cfg *config.Config
	// journal is opened on demand by the commands that record or read sessions
	journal store.Journal

	configPath string
	envFile    string
	overrides  struct {
		backendURL    string
		timeout       time.Duration
		journalDSN    string
		logLevel      string
		cameraBackend string
		device        string
		width         int
	}
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "rollcall",
	Short:   "Webcam kiosk client for face-recognition attendance and enrollment",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional unless one was named explicitly
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load env file: %w", err)
			}
		} else {
			_ = godotenv.Load()
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, loaded)
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded

		logging.Init(cfg.Logging.Level)
		log.Debug().Str("backend", cfg.Backend.URL).Str("device", cfg.Camera.Device).Msg("configuration loaded")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if journal != nil {
			if err := journal.Close(); err != nil {
				log.Warn().Err(err).Msg("closing journal")
			}
			journal = nil
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to a TOML config file")
	pf.StringVar(&envFile, "env-file", "", "Path to a .env file (default: ./.env if present)")
	pf.StringVarP(&overrides.backendURL, "backend", "b", "", "Recognition backend base URL (default http://127.0.0.1:5000)")
	pf.DurationVar(&overrides.timeout, "timeout", 0, "Per-request timeout, 0 disables it (default 30s)")
	pf.StringVar(&overrides.journalDSN, "journal", "", "Journal DSN: SQLite path, postgres:// URL, or \"off\"")
	pf.StringVar(&overrides.logLevel, "log-level", "", "Diagnostic log level: debug, info, warn, error")
	pf.StringVar(&overrides.cameraBackend, "camera-backend", "", "Capture backend: v4l2 or dir")
	pf.StringVarP(&overrides.device, "device", "d", "", "Capture device (e.g. /dev/video0) or image directory")
	pf.IntVar(&overrides.width, "width", 0, "Capture width in pixels, 0 keeps the device's native size")
}

// applyFlagOverrides lets explicitly set flags win over file and environment.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("backend") {
		c.Backend.URL = overrides.backendURL
	}
	if flags.Changed("timeout") {
		c.Backend.Timeout = config.Duration(overrides.timeout)
	}
	if flags.Changed("journal") {
		c.Journal.DSN = overrides.journalDSN
	}
	if flags.Changed("log-level") {
		c.Logging.Level = overrides.logLevel
	}
	if flags.Changed("camera-backend") {
		c.Camera.Backend = overrides.cameraBackend
	}
	if flags.Changed("device") {
		c.Camera.Device = overrides.device
	}
	if flags.Changed("width") {
		c.Camera.Width = overrides.width
	}
}

func newClient() (*client.Client, error) {
	c, err := client.New(cfg.Backend.URL, cfg.Backend.Timeout.Std())
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	return c, nil
}

func cameraOptions() camera.Options {
	return camera.Options{
		Backend:        cfg.Camera.Backend,
		Device:         cfg.Camera.Device,
		Width:          cfg.Camera.Width,
		StartupTimeout: cfg.Camera.StartupTimeout.Std(),
		LockDir:        cfg.Camera.LockDir,
	}
}

func acquireCamera(ctx context.Context) (*camera.Source, error) {
	fmt.Fprintf(os.Stderr, "📷 Opening camera %s (%s)...\n", cfg.Camera.Device, cfg.Camera.Backend)
	return camera.Acquire(ctx, cameraOptions())
}

// openJournal opens the configured journal once per process. required
// controls whether a disabled or unreachable journal is an error.
func openJournal(ctx context.Context, required bool) (store.Journal, error) {
	if journal != nil {
		return journal, nil
	}
	if !cfg.JournalEnabled() {
		if required {
			return nil, fmt.Errorf("the journal is disabled (journal = %q)", cfg.Journal.DSN)
		}
		return nil, nil
	}

	j, err := store.Open(ctx, cfg.Journal.DSN)
	if err != nil {
		if required {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		log.Warn().Err(err).Msg("journal unavailable, continuing without it")
		return nil, nil
	}
	journal = j
	return journal, nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func shutdownPanel(srv shutdowner) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("status panel shutdown")
	}
}
