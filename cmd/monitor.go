package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grovetools/pgpulse/cli"
	"github.com/grovetools/pgpulse/config"
	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/internal/daemon/bus"
	"github.com/grovetools/pgpulse/internal/daemon/engine"
	"github.com/grovetools/pgpulse/internal/daemon/pidfile"
	"github.com/grovetools/pgpulse/internal/daemon/server"
	"github.com/grovetools/pgpulse/logging"
	"github.com/grovetools/pgpulse/pkg/daemon"
	"github.com/grovetools/pgpulse/pkg/paths"
	"github.com/grovetools/pgpulse/tui/dashboard"
)

const configDebounce = 500 * time.Millisecond

type monitorOptions struct {
	dsn      string
	interval time.Duration
	record   bool
	dir      string
	label    string
	listen   string
	daemon   bool
	headless bool
}

// NewMonitorCmd returns the live monitoring command.
func NewMonitorCmd() *cobra.Command {
	opts := &monitorOptions{}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Monitor PostgreSQL in real time",
		Long: `Poll every configured source once per refresh interval and show the merged
snapshot in a dashboard. Sources come from pgpulse.yml; --dsn adds or replaces
the primary server.

With --daemon the session runs headless, always records, writes its logs to
the pgpulse state directory and holds a PID file so only one daemon records
per label.

Examples:
  # Watch one server
  pgpulse monitor --dsn postgres://postgres@localhost:5432/postgres

  # Record while watching, refreshing every two seconds
  pgpulse monitor --record --interval 2s

  # Record in the background and serve remote viewers
  pgpulse monitor --daemon --listen unix:/tmp/pgpulse.sock`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if err := opts.apply(cfg); err != nil {
				return err
			}
			cli.ConfigureLogging(cfg.Logging, cli.GetOptions(cmd).Verbose)
			return runMonitor(cmd.Context(), cfg, path, opts)
		},
	}

	cmd.Annotations = map[string]string{cli.KeysAnnotation: dashboard.DefaultKeyMap.Reference(false)}

	cmd.Flags().StringVar(&opts.dsn, "dsn", "", "Connection string of the primary server")
	cmd.Flags().DurationVarP(&opts.interval, "interval", "i", 0, "Refresh interval (overrides refresh_interval)")
	cmd.Flags().BoolVarP(&opts.record, "record", "r", false, "Record the session to disk")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "Session log directory (overrides recording.dir)")
	cmd.Flags().StringVar(&opts.label, "label", "", "Session label (overrides recording.label)")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "Serve remote viewers on unix:/path.sock or host:port")
	cmd.Flags().BoolVarP(&opts.daemon, "daemon", "d", false, "Run headless and record in the background")
	cmd.Flags().BoolVar(&opts.headless, "no-tui", false, "Print notices instead of showing the dashboard")

	cmd.AddCommand(newMonitorStatusCmd())
	cmd.AddCommand(newMonitorStopCmd())

	return cmd
}

// apply layers flag values over cfg and re-validates the result.
func (o *monitorOptions) apply(cfg *config.Config) error {
	if o.dsn != "" {
		setPrimaryDSN(cfg, o.dsn)
	}
	if o.interval > 0 {
		cfg.RefreshInterval = config.Duration(o.interval)
	}
	if o.record || o.daemon {
		cfg.Recording.Enabled = true
	}
	if o.dir != "" {
		cfg.Recording.Dir = o.dir
	}
	if o.label != "" {
		cfg.Recording.Label = o.label
	}
	if o.listen != "" {
		cfg.Server.Listen = o.listen
	}
	if o.daemon && !cfg.Logging.File.Enabled {
		cfg.Logging.File.Enabled = true
		cfg.Logging.File.Path = logging.DefaultFilePath(paths.LogDir(), "pgpulse-"+engine.SessionLabel(cfg))
	}

	if err := cfg.Finalize(); err != nil {
		return err
	}
	if len(cfg.Sources) == 0 {
		return errors.New(errors.ErrCodeConfigValidation, "no sources configured; pass --dsn or add sources to pgpulse.yml")
	}
	return nil
}

func setPrimaryDSN(cfg *config.Config, dsn string) {
	for i := range cfg.Sources {
		if cfg.Sources[i].Kind != config.KindPrimary {
			continue
		}
		if cfg.Sources[i].Params == nil {
			cfg.Sources[i].Params = make(map[string]interface{})
		}
		cfg.Sources[i].Params["dsn"] = dsn
		return
	}
	cfg.Sources = append(cfg.Sources, config.SourceConfig{
		ID:     "primary",
		Kind:   config.KindPrimary,
		Params: map[string]interface{}{"dsn": dsn},
	})
}

func pidFilePath(cfg *config.Config) string {
	if cfg.Daemon.PidFile != "" {
		return paths.Expand(cfg.Daemon.PidFile)
	}
	return paths.PidFilePath(engine.SessionLabel(cfg))
}

func runMonitor(ctx context.Context, cfg *config.Config, cfgPath string, opts *monitorOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.NewLogger("monitor")

	if opts.daemon {
		pidPath := pidFilePath(cfg)
		if err := pidfile.Acquire(pidPath); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
		defer func() {
			if err := pidfile.Release(pidPath); err != nil {
				logger.Errorf("Failed to release pidfile: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.New(0)
	eng, err := engine.New(engine.Options{
		Config: cfg,
		Bus:    b,

		// A daemon exists to record; without a log it has nothing to do.
		RequireRecording: opts.daemon,
	})
	if err != nil {
		return err
	}

	if cfg.Server.Listen != "" {
		srv := server.New(logger, b)
		srv.SetEngine(eng)
		go func() {
			if err := srv.ListenAndServe(cfg.Server.Listen); err != nil {
				logger.WithError(err).Error("Viewer endpoint stopped")
				b.Notify(bus.NoticeError, "server", fmt.Sprintf("viewer endpoint stopped: %v", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Errorf("Server shutdown error: %v", err)
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfgPath != "" {
		startConfigWatcher(runCtx, cfgPath, opts, eng, logger)
	}

	interactive := !opts.daemon && !opts.headless && isInteractive()
	// Subscribe before the first tick so no early notice is missed.
	subName := "notices"
	if interactive {
		subName = "dashboard"
	}
	sub := b.Subscribe(subName)
	defer b.Unsubscribe(sub)

	done := make(chan error, 1)
	go func() {
		done <- eng.Run(runCtx)
		// Consumers see the stream end when the session does.
		b.Close()
	}()

	logger.WithFields(logrus.Fields{
		"pid":   os.Getpid(),
		"label": engine.SessionLabel(cfg),
	}).Info("Starting live session")

	if interactive {
		uiErr := runDashboard("pgpulse "+engine.SessionLabel(cfg), sub, dashboard.LiveControls(eng))
		cancel()
		if err := <-done; err != nil {
			return err
		}
		return uiErr
	}

	printNotices(sub, logging.NewPrettyLogger().WithWriter(os.Stderr))
	return <-done
}

// startConfigWatcher applies edits of the configuration file to the running
// engine. An explicit --interval wins over the file.
func startConfigWatcher(ctx context.Context, path string, opts *monitorOptions, eng *engine.Engine, logger *logrus.Entry) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	w, err := daemon.NewConfigWatcher(abs, configDebounce, func(next *config.Config) {
		if opts.interval > 0 {
			next.RefreshInterval = config.Duration(opts.interval)
		}
		eng.ApplyConfig(next)
		eng.Bus().Notify(bus.NoticeInfo, "config", "configuration reloaded")
	})
	if err != nil {
		logger.WithError(err).Warn("Config hot reload disabled")
		return
	}
	go w.Start(ctx)
}

// printNotices renders Bus notices as operator lines until the stream ends.
func printNotices(sub *bus.Subscription, pretty *logging.PrettyLogger) {
	for d := range sub.C() {
		if d.Type != bus.DeliveryNotice || d.Notice == nil {
			continue
		}
		msg := d.Notice.Source + ": " + d.Notice.Message
		switch d.Notice.Level {
		case bus.NoticeError:
			pretty.Error(msg)
		case bus.NoticeWarning:
			pretty.Warn(msg)
		default:
			pretty.Info(msg)
		}
	}
}

func newMonitorStatusCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether a recording daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if label != "" {
				cfg.Recording.Label = label
			}
			pidPath := pidFilePath(cfg)
			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}

			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
				// Non-zero exit for scripts.
				return fmt.Errorf("no daemon running for %s", pidPath)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Running (PID: %d)\nPID file: %s\n", pid, pidPath)
			if cfg.Server.Listen != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Viewers: %s\n", cfg.Server.Listen)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Session label of the daemon")
	return cmd
}

func newMonitorStopCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running recording daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if label != "" {
				cfg.Recording.Label = label
			}
			running, pid, err := pidfile.IsRunning(pidFilePath(cfg))
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Session label of the daemon")
	return cmd
}
