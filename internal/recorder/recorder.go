// Package recorder persists live Snapshots to a session log off the tick
// path and prunes expired sessions.
package recorder

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/internal/sessionlog"
	"github.com/grovetools/pgpulse/logging"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// DefaultQueueSize bounds the number of Snapshots waiting for disk.
const DefaultQueueSize = 256

// FrameWriter appends frames to a session log.
type FrameWriter interface {
	Append(s snapshot.Snapshot) error
	Close() error
	Path() string
}

// Options configures a Recorder.
type Options struct {
	Session   sessionlog.SessionOptions
	QueueSize int
	// Writer replaces the session log writer created from Session.
	Writer FrameWriter
	// OnDisabled is called once if recording is disabled by a write failure.
	OnDisabled func(err error)
}

// Recorder appends Snapshots to a session log from its own goroutine.
// Record never blocks; when the queue is full the Snapshot is dropped.
// The first write failure disables recording for the rest of the session.
type Recorder struct {
	writer     FrameWriter
	queue      chan snapshot.Snapshot
	onDisabled func(error)
	logger     *logrus.Entry

	mu     sync.RWMutex
	closed bool

	disabled atomic.Bool
	once     sync.Once
	err      error
	written  atomic.Uint64
	dropped  atomic.Uint64
	skipped  atomic.Uint64

	done     chan struct{}
	closeErr error
}

// Start opens the session log and starts the writer goroutine.
func Start(opts Options) (*Recorder, error) {
	w := opts.Writer
	if w == nil {
		sw, err := sessionlog.Create(opts.Session)
		if err != nil {
			return nil, err
		}
		w = sw
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	r := &Recorder{
		writer:     w,
		queue:      make(chan snapshot.Snapshot, size),
		onDisabled: opts.OnDisabled,
		logger:     logging.NewLogger("recorder").WithField("path", w.Path()),
		done:       make(chan struct{}),
	}
	go r.run()
	r.logger.Info("Recording started")
	return r, nil
}

// Record queues s for writing. It is a scheduler sink and returns at once.
func (r *Recorder) Record(s snapshot.Snapshot) {
	if r.disabled.Load() {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- s:
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.WithField("sequence", s.Sequence).Warn("Recorder queue full, dropping snapshots")
		}
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for s := range r.queue {
		if r.disabled.Load() {
			continue
		}
		if err := r.writer.Append(s); err != nil {
			if errors.Is(err, errors.ErrCodeFrameEncode) {
				r.skipped.Add(1)
				r.logger.WithError(err).WithField("sequence", s.Sequence).Warn("Snapshot not recorded")
				continue
			}
			r.disable(err)
			continue
		}
		r.written.Add(1)
	}
	if !r.disabled.Load() {
		r.closeErr = r.writer.Close()
	}
}

func (r *Recorder) disable(err error) {
	r.once.Do(func() {
		r.err = err
		r.disabled.Store(true)
		r.logger.WithError(err).Error("Recording disabled")
		// Finalize what was written so far; it stays replayable.
		if cerr := r.writer.Close(); cerr != nil {
			r.logger.WithError(cerr).Debug("Closing session log after failure")
		}
		if r.onDisabled != nil {
			r.onDisabled(err)
		}
	})
}

// Close drains the queue, finalizes the log and waits for the writer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return r.closeErr
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	if r.closeErr == nil {
		r.logger.WithField("frames", r.written.Load()).Info("Recording closed")
	}
	return r.closeErr
}

// Path returns the session log path.
func (r *Recorder) Path() string { return r.writer.Path() }

// Disabled reports whether a write failure stopped recording, with the cause.
func (r *Recorder) Disabled() (bool, error) {
	if !r.disabled.Load() {
		return false, nil
	}
	return true, r.err
}

// Skipped returns the number of Snapshots that could not be encoded.
func (r *Recorder) Skipped() uint64 { return r.skipped.Load() }

// Stats returns the number of frames written and snapshots dropped.
func (r *Recorder) Stats() (written, dropped uint64) {
	return r.written.Load(), r.dropped.Load()
}
