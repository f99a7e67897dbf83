// Package engine runs a live monitoring session: the Composer gathers from
// collectors, the Scheduler drives ticks, and every Snapshot goes to the Bus
// and, while recording, to the Recorder.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/pgpulse/config"
	"github.com/grovetools/pgpulse/internal/daemon/bus"
	"github.com/grovetools/pgpulse/internal/daemon/collector"
	"github.com/grovetools/pgpulse/internal/recorder"
	"github.com/grovetools/pgpulse/internal/sessionlog"
	"github.com/grovetools/pgpulse/logging"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

const (
	// ProducerName is the Bus producer name used by live sessions.
	ProducerName = "live"

	// IntervalStep is the operator increment for the refresh interval.
	IntervalStep = 500 * time.Millisecond
	// MinInterval is the smallest interval reachable by operator decrements.
	MinInterval = 500 * time.Millisecond

	busSink      = "bus"
	recorderSink = "recorder"
)

// Options configures an Engine.
type Options struct {
	Config *config.Config
	Bus    *bus.Bus
	// Registry builds collectors from Config.Sources. Defaults to the built-in kinds.
	Registry *collector.Registry
	// Collectors bypasses the registry.
	Collectors []collector.Collector
	// RequireRecording makes Run fail when configured recording cannot
	// start. Otherwise the session runs unrecorded after a warning.
	RequireRecording bool
	// OpenLog replaces sessionlog.Create when recording starts.
	OpenLog func(sessionlog.SessionOptions) (recorder.FrameWriter, error)
}

// Engine owns one live session.
type Engine struct {
	cfg        *config.Config
	collectors []collector.Collector
	composer   *Composer
	scheduler  *Scheduler
	bus        *bus.Bus
	pub        *bus.Publisher
	logger     *logrus.Entry

	requireRecording bool
	openLog          func(sessionlog.SessionOptions) (recorder.FrameWriter, error)

	mu       sync.Mutex
	recorder *recorder.Recorder
}

// Status summarises the session for operators and the health endpoint.
type Status struct {
	State       string             `json:"state"`
	Interval    string             `json:"interval"`
	Ticks       uint64             `json:"ticks"`
	Overruns    uint64             `json:"overruns"`
	Recording   string             `json:"recording,omitempty"`
	RecordingOK bool               `json:"recording_ok"`
	Sources     []collector.Health `json:"sources"`
}

// New builds collectors and claims the Bus for the live producer.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	b := opts.Bus
	if b == nil {
		b = bus.New(0)
	}

	collectors := opts.Collectors
	if collectors == nil {
		reg := opts.Registry
		if reg == nil {
			reg = collector.DefaultRegistry()
		}
		built, err := reg.Build(cfg.Sources)
		if err != nil {
			return nil, err
		}
		collectors = built
	}

	pub, err := b.Claim(ProducerName)
	if err != nil {
		collector.Close(collectors)
		return nil, err
	}

	timeouts := make(map[snapshot.SourceID]time.Duration, len(cfg.Sources))
	for _, src := range cfg.Sources {
		timeouts[snapshot.SourceID(src.ID)] = src.Timeout.Std()
	}
	composer := NewComposer(collectors, ComposerOptions{
		Deadline: cfg.TickDeadline(),
		Timeouts: timeouts,
	})
	scheduler := NewScheduler(composer, cfg.RefreshInterval.Std())
	scheduler.AddSink(busSink, pub.Publish)

	return &Engine{
		cfg:        cfg,
		collectors: collectors,
		composer:   composer,
		scheduler:  scheduler,
		bus:        b,
		pub:        pub,
		logger:     logging.NewLogger("engine"),

		requireRecording: opts.RequireRecording,
		openLog:          opts.OpenLog,
	}, nil
}

// Run starts recording if configured, runs retention pruning and drives ticks
// until ctx is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	defer e.shutdown()

	if e.cfg.Recording.Enabled {
		if err := e.StartRecording(); err != nil {
			if e.requireRecording {
				return err
			}
			e.logger.WithError(err).Warn("Recording unavailable, monitoring without it")
		}
	}

	pruneCtx, cancelPrune := context.WithCancel(ctx)
	defer cancelPrune()
	if e.cfg.Recording.Dir != "" {
		pruner := recorder.NewPruner(e.cfg.Recording.Dir, e.cfg.Recording.RetentionHorizon()).
			WithActive(e.RecordingPath)
		go pruner.Run(pruneCtx, e.cfg.Recording.PruneInterval.Std())
	}

	e.logger.WithField("sources", len(e.collectors)).
		WithField("interval", e.scheduler.Interval()).
		Info("Live session started")
	e.scheduler.Run(ctx)
	return nil
}

func (e *Engine) shutdown() {
	if err := e.StopRecording(); err != nil {
		e.logger.WithError(err).Warn("Failed to close recording")
	}
	collector.Close(e.collectors)
	e.pub.Release()
	e.logger.Info("Live session stopped")
}

// Stop ends the session; Run returns after the current tick.
func (e *Engine) Stop() { e.scheduler.Stop() }

// Bus returns the Bus the session publishes on.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// Scheduler returns the tick scheduler.
func (e *Engine) Scheduler() *Scheduler { return e.scheduler }

// Composer returns the snapshot composer.
func (e *Engine) Composer() *Composer { return e.composer }

// TogglePause pauses or resumes ticking.
func (e *Engine) TogglePause() State {
	state := e.scheduler.Toggle()
	e.bus.Notify(bus.NoticeInfo, "scheduler", "monitoring "+state.String())
	return state
}

// SetInterval changes the refresh interval from the next fire on and moves
// the tick deadline with it.
func (e *Engine) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	ct := e.cfg.CompositionTimeout.Std()
	e.mu.Unlock()
	e.scheduler.SetInterval(d)
	e.composer.SetDeadline(tickDeadline(d, ct))
	e.logger.WithField("interval", d).Info("Refresh interval changed")
}

// IncreaseInterval slows the refresh by one step.
func (e *Engine) IncreaseInterval() time.Duration {
	d := e.scheduler.Interval() + IntervalStep
	e.SetInterval(d)
	return d
}

// DecreaseInterval speeds up the refresh by one step, down to MinInterval.
func (e *Engine) DecreaseInterval() time.Duration {
	d := e.scheduler.Interval() - IntervalStep
	if d < MinInterval {
		d = MinInterval
	}
	e.SetInterval(d)
	return d
}

// ApplyConfig applies the hot-reloadable parts of a new configuration.
func (e *Engine) ApplyConfig(cfg *config.Config) {
	e.mu.Lock()
	e.cfg.CompositionTimeout = cfg.CompositionTimeout
	e.mu.Unlock()
	if d := cfg.RefreshInterval.Std(); d > 0 && d != e.scheduler.Interval() {
		e.SetInterval(d)
	} else {
		e.composer.SetDeadline(tickDeadline(e.scheduler.Interval(), cfg.CompositionTimeout.Std()))
	}
}

// StartRecording opens a new session log and attaches the Recorder as a sink.
// It is a no-op while already recording.
func (e *Engine) StartRecording() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recorder != nil {
		return nil
	}

	rc := e.cfg.Recording
	session := sessionlog.SessionOptions{
		Dir:            rc.Dir,
		Label:          SessionLabel(e.cfg),
		Sources:        sourceMeta(e.cfg.Sources),
		RetentionHours: rc.RetentionHours,
		Interval:       e.scheduler.Interval(),
		MetaFlushEvery: rc.MetaFlushEvery,
	}
	var writer recorder.FrameWriter
	if e.openLog != nil {
		w, err := e.openLog(session)
		if err != nil {
			e.bus.Notify(bus.NoticeWarning, "recorder", fmt.Sprintf("cannot start recording: %v", err))
			return err
		}
		writer = w
	}
	rec, err := recorder.Start(recorder.Options{
		Session:   session,
		Writer:    writer,
		QueueSize: rc.QueueSize,
		OnDisabled: func(err error) {
			e.bus.Notify(bus.NoticeWarning, "recorder", fmt.Sprintf("recording disabled: %v", err))
		},
	})
	if err != nil {
		e.bus.Notify(bus.NoticeWarning, "recorder", fmt.Sprintf("cannot start recording: %v", err))
		return err
	}
	e.recorder = rec
	e.scheduler.AddSink(recorderSink, rec.Record)
	e.bus.Notify(bus.NoticeInfo, "recorder", "recording to "+rec.Path())
	return nil
}

// StopRecording detaches and closes the Recorder, finalizing the log.
func (e *Engine) StopRecording() error {
	e.mu.Lock()
	rec := e.recorder
	e.recorder = nil
	e.mu.Unlock()
	if rec == nil {
		return nil
	}
	e.scheduler.RemoveSink(recorderSink)
	err := rec.Close()
	e.bus.Notify(bus.NoticeInfo, "recorder", "recording stopped")
	return err
}

// ToggleRecording starts or stops recording and reports whether it is on.
func (e *Engine) ToggleRecording() (bool, error) {
	if e.RecordingPath() != "" {
		return false, e.StopRecording()
	}
	return true, e.StartRecording()
}

// RecordingPath returns the active session log path, or "".
func (e *Engine) RecordingPath() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recorder == nil {
		return ""
	}
	return e.recorder.Path()
}

// Status reports the session's current state.
func (e *Engine) Status() Status {
	ticks, overruns := e.scheduler.Stats()
	st := Status{
		State:    e.scheduler.State().String(),
		Interval: e.scheduler.Interval().String(),
		Ticks:    ticks,
		Overruns: overruns,
		Sources:  e.composer.Health(),
	}
	e.mu.Lock()
	if e.recorder != nil {
		st.Recording = e.recorder.Path()
		disabled, _ := e.recorder.Disabled()
		st.RecordingOK = !disabled
	}
	e.mu.Unlock()
	return st
}

// SessionLabel is the configured recording label or one derived from the
// primary DSN. It names the session directory and the daemon PID file.
func SessionLabel(cfg *config.Config) string {
	if cfg.Recording.Label != "" {
		return cfg.Recording.Label
	}
	for _, src := range cfg.Sources {
		if src.Kind != config.KindPrimary {
			continue
		}
		if label, err := sessionlog.LabelFromDSN(src.StringParam("dsn")); err == nil {
			return label
		}
	}
	return "local"
}

func sourceMeta(sources []config.SourceConfig) []sessionlog.SourceMeta {
	out := make([]sessionlog.SourceMeta, 0, len(sources))
	for _, src := range sources {
		out = append(out, sessionlog.SourceMeta{
			ID:     src.ID,
			Kind:   src.Kind,
			Params: sessionlog.ScrubParams(src.Params),
		})
	}
	return out
}

func tickDeadline(interval, compositionTimeout time.Duration) time.Duration {
	if compositionTimeout > 0 && compositionTimeout < interval {
		return compositionTimeout
	}
	return interval
}
