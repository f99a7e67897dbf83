// Package replay reads closed session logs back as a Snapshot source with
// operator navigation.
package replay

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/internal/daemon/pidfile"
	"github.com/grovetools/pgpulse/internal/sessionlog"
	"github.com/grovetools/pgpulse/logging"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// Log is a read-only view of one session log. Any number of Cursors may read
// it concurrently.
type Log struct {
	path        string
	reader      *sessionlog.Reader
	index       sessionlog.Index
	meta        *sessionlog.Meta
	interrupted bool
	logger      *logrus.Entry
}

// Open scans the log at path. It refuses a log whose writer is still alive
// (SESSION_IN_USE). A log left by a dead writer, or with a truncated tail,
// opens as an interrupted recording.
func Open(path string) (*Log, error) {
	logger := logging.NewLogger("replay").WithField("path", path)

	lockPath := sessionlog.LockPath(path)
	running, pid, err := pidfile.IsRunning(lockPath)
	if err != nil {
		logger.WithError(err).Debug("Ignoring unreadable writer lock")
	}
	if running {
		return nil, errors.SessionInUse(path, pid)
	}

	reader, err := sessionlog.Open(path)
	if err != nil {
		return nil, err
	}
	idx := reader.Index()
	if len(idx.Frames) == 0 {
		reader.Close()
		return nil, errors.SessionOpen(path, fmt.Errorf("no readable frames"))
	}

	l := &Log{
		path:   path,
		reader: reader,
		index:  idx,
		logger: logger,
	}
	if meta, err := sessionlog.ReadMeta(sessionlog.MetaPath(path)); err == nil {
		l.meta = meta
	}
	l.interrupted = idx.EndedEarly || pid != 0 || (l.meta != nil && !l.meta.Closed)

	if idx.EndedEarly {
		logger.WithField("offset", idx.GoodOffset).Warn("Recording ended early")
	}
	for _, gap := range idx.Gaps {
		logger.WithError(gap.Err).Warn("Skipped corrupt frame")
	}
	return l, nil
}

// Path returns the log path.
func (l *Log) Path() string { return l.path }

// Len returns the number of readable Snapshots.
func (l *Log) Len() int { return len(l.index.Frames) }

// Meta returns the session metadata, or nil when the sidecar is missing.
func (l *Log) Meta() *sessionlog.Meta { return l.meta }

// EndedEarly reports a truncated final frame; the error carries REPLAY_TRUNCATED.
func (l *Log) EndedEarly() (bool, error) { return l.index.EndedEarly, l.index.Truncated }

// Gaps returns the corrupt frames that were skipped.
func (l *Log) Gaps() []sessionlog.Gap { return l.index.Gaps }

// Interrupted reports a recording that was not closed cleanly.
func (l *Log) Interrupted() bool { return l.interrupted }

// Span returns the first and last capture times.
func (l *Log) Span() (time.Time, time.Time) {
	frames := l.index.Frames
	return frames[0].CapturedAt, frames[len(frames)-1].CapturedAt
}

// Close releases the file. Cursors must not be used afterwards.
func (l *Log) Close() error { return l.reader.Close() }

func (l *Log) read(i int) (snapshot.Snapshot, error) {
	return l.reader.ReadFrame(i)
}

func (l *Log) frame(i int) sessionlog.FrameRef { return l.index.Frames[i] }

// indexOfSequence returns the position of the first frame whose sequence is
// at least seq, clamped to the last frame.
func (l *Log) indexOfSequence(seq uint64) int {
	frames := l.index.Frames
	i := sort.Search(len(frames), func(i int) bool { return frames[i].Sequence >= seq })
	if i >= len(frames) {
		i = len(frames) - 1
	}
	return i
}

// indexOfTime returns the position of the first frame captured at or after t,
// clamped to the log's bounds.
func (l *Log) indexOfTime(t time.Time) int {
	frames := l.index.Frames
	i := sort.Search(len(frames), func(i int) bool { return !frames[i].CapturedAt.Before(t) })
	if i >= len(frames) {
		i = len(frames) - 1
	}
	return i
}
