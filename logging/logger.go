package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// registry holds the active configuration, one cached entry per component
// and the log files opened for the file sink. Files are shared by every
// component writing to the same path and survive Configure, since entries
// handed out earlier may still write to them.
type registry struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*logrus.Entry
	files   map[string]*os.File
}

var loggers = &registry{
	entries: make(map[string]*logrus.Entry),
	files:   make(map[string]*os.File),
}

// Configure installs the logging configuration used by subsequently created
// loggers and drops cached entries so the new settings take effect.
func Configure(cfg Config) {
	loggers.mu.Lock()
	defer loggers.mu.Unlock()
	loggers.cfg = cfg
	loggers.entries = make(map[string]*logrus.Entry)
}

// NewLogger returns the logger for a component, creating it on first use.
func NewLogger(component string) *logrus.Entry {
	loggers.mu.Lock()
	defer loggers.mu.Unlock()

	if entry, ok := loggers.entries[component]; ok {
		return entry
	}

	cfg := loggers.cfg
	logger := logrus.New()
	logger.SetLevel(resolveLevel(cfg))
	logger.SetReportCaller(cfg.ReportCaller || os.Getenv("PGPULSE_LOG_CALLER") == "true")
	logger.SetFormatter(formatterFor(cfg.Format))

	var sinks []io.Writer
	if cfg.File.Enabled && cfg.File.Path != "" {
		if f, err := loggers.openFile(cfg.File.Path); err == nil {
			sinks = append(sinks, f)
		} else {
			fmt.Fprintf(GetGlobalOutput(), "pgpulse: file logging disabled: %v\n", err)
		}
	}
	if wantsStderr(cfg.Format.StructuredToStderr, logger.GetLevel()) {
		sinks = append(sinks, GetGlobalOutput())
	}

	switch len(sinks) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(sinks[0])
	default:
		logger.SetOutput(io.MultiWriter(sinks...))
	}

	entry := logger.WithField("component", component)
	loggers.entries[component] = entry
	return entry
}

// openFile returns the shared append handle for path. Called with mu held.
func (r *registry) openFile(path string) (*os.File, error) {
	path = expandHome(path)
	if f, ok := r.files[path]; ok {
		return f, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	r.files[path] = f
	return f, nil
}

// resolveLevel prefers PGPULSE_LOG_LEVEL over the configured level; anything
// unparseable means info.
func resolveLevel(cfg Config) logrus.Level {
	name := os.Getenv("PGPULSE_LOG_LEVEL")
	if name == "" {
		name = cfg.Level
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func formatterFor(format FormatConfig) logrus.Formatter {
	switch format.Preset {
	case "json":
		return &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	case "simple":
		return &TextFormatter{Config: FormatConfig{DisableTimestamp: true, DisableComponent: true}}
	default:
		return &TextFormatter{Config: format}
	}
}

// wantsStderr decides whether structured logs reach the terminal. In auto
// mode they do for debug runs and whenever stderr is not a terminal (daemon
// mode, CI, piped output); interactive runs leave the screen to the dashboard.
func wantsStderr(mode string, level logrus.Level) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if level >= logrus.DebugLevel || os.Getenv("PGPULSE_DEBUG") == "1" {
		return true
	}
	fd := os.Stderr.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// DefaultFilePath returns a dated log file path for a component under dir.
func DefaultFilePath(dir, component string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.log", component, time.Now().Format("2006-01-02")))
}

func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
