package sessionlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/internal/daemon/pidfile"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// DefaultMetaFlushEvery is how often the sidecar is rewritten during a session.
const DefaultMetaFlushEvery = 16

// SessionOptions describes a new recording session.
type SessionOptions struct {
	Dir            string
	Label          string
	StartedAt      time.Time
	Sources        []SourceMeta
	RetentionHours int
	Interval       time.Duration
	MetaFlushEvery int
}

// Writer appends frames to one session log. It is owned by a single
// goroutine and is not safe for concurrent use.
type Writer struct {
	path       string
	file       *os.File
	meta       Meta
	offset     int64
	flushEvery int
	unflushed  int
	closed     bool
}

// Create opens a new session log at <dir>/<label>/<YYYYmmdd_HHMMSS>.pgsl,
// takes its writer lock and writes the initial sidecar.
func Create(opts SessionOptions) (*Writer, error) {
	if opts.Label == "" {
		opts.Label = "local"
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	if opts.MetaFlushEvery <= 0 {
		opts.MetaFlushEvery = DefaultMetaFlushEvery
	}

	dir := filepath.Join(opts.Dir, opts.Label)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.SessionOpen(dir, err)
	}

	file, path, err := createUnique(dir, opts.StartedAt)
	if err != nil {
		return nil, errors.SessionOpen(dir, err)
	}
	if err := pidfile.Acquire(LockPath(path)); err != nil {
		file.Close()
		_ = os.Remove(path)
		return nil, errors.SessionOpen(path, err)
	}

	w := &Writer{
		path: path,
		file: file,
		meta: Meta{
			ID:             uuid.NewString(),
			Label:          opts.Label,
			StartedAt:      opts.StartedAt.UTC(),
			Sources:        opts.Sources,
			RetentionHours: opts.RetentionHours,
		},
		flushEvery: opts.MetaFlushEvery,
	}
	if opts.Interval > 0 {
		w.meta.Interval = opts.Interval.String()
	}
	if err := WriteMeta(MetaPath(path), &w.meta); err != nil {
		w.abort()
		return nil, errors.SessionOpen(path, err)
	}
	return w, nil
}

// createUnique creates the log file exclusively, adding a numeric suffix if a
// session already started in the same second.
func createUnique(dir string, started time.Time) (*os.File, string, error) {
	base := FileName(started)
	stem := base[:len(base)-len(Extension)]
	for i := 0; i < 100; i++ {
		name := base
		if i > 0 {
			name = stem + "_" + strconv.Itoa(i) + Extension
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, path, nil
		}
		if !os.IsExist(err) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("too many sessions started at %s", base)
}

// Path returns the log file path.
func (w *Writer) Path() string { return w.path }

// Meta returns a copy of the current metadata.
func (w *Writer) Meta() Meta { return w.meta }

// Append writes one frame. A failed write is rolled back to the last good
// offset so the log stays readable, and the error carries RECORDER_IO.
// A Snapshot that cannot be encoded is refused with FRAME_ENCODE and
// nothing is written.
func (w *Writer) Append(s snapshot.Snapshot) error {
	if w.closed {
		return errors.RecorderIO(w.path, os.ErrClosed)
	}
	frame, err := EncodeFrame(s)
	if err != nil {
		return errors.FrameEncode(s.Sequence, err)
	}
	if _, err := w.file.Write(frame); err != nil {
		_ = w.file.Truncate(w.offset)
		_, _ = w.file.Seek(w.offset, io.SeekStart)
		return errors.RecorderIO(w.path, err)
	}

	w.offset += int64(len(frame))
	if w.meta.Frames == 0 {
		w.meta.FirstSequence = s.Sequence
	}
	w.meta.Frames++
	w.meta.LastSequence = s.Sequence
	w.meta.LastGoodOffset = w.offset

	w.unflushed++
	if w.unflushed >= w.flushEvery {
		if err := w.flushMeta(); err != nil {
			return errors.RecorderIO(MetaPath(w.path), err)
		}
	}
	return nil
}

func (w *Writer) flushMeta() error {
	w.unflushed = 0
	return WriteMeta(MetaPath(w.path), &w.meta)
}

// Close syncs the log, marks the sidecar closed (replay-safe) and releases
// the writer lock. It is safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	if err := w.file.Sync(); err != nil {
		firstErr = err
	}
	if err := w.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	now := time.Now().UTC()
	w.meta.ClosedAt = &now
	w.meta.Closed = true
	if err := w.flushMeta(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := pidfile.Release(LockPath(w.path)); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return errors.RecorderIO(w.path, firstErr)
	}
	return nil
}

func (w *Writer) abort() {
	w.closed = true
	w.file.Close()
	_ = os.Remove(w.path)
	_ = pidfile.Release(LockPath(w.path))
}
