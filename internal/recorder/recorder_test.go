package recorder

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/internal/sessionlog"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// failingWriter fails every append from failAt (0-based) on.
type failingWriter struct {
	mu       sync.Mutex
	failAt   int
	appended []uint64
	attempts int
	closes   int
	block    chan struct{}
	// unencodable sequences are refused without touching the log.
	unencodable map[uint64]bool
}

func (w *failingWriter) Append(s snapshot.Snapshot) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unencodable[s.Sequence] {
		return errors.FrameEncode(s.Sequence, fmt.Errorf("unsupported value"))
	}
	w.attempts++
	if w.failAt >= 0 && w.attempts > w.failAt {
		return errors.RecorderIO("/full/disk.pgsl", fmt.Errorf("no space left on device"))
	}
	w.appended = append(w.appended, s.Sequence)
	return nil
}

func (w *failingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closes++
	return nil
}

func (w *failingWriter) Path() string { return "/full/disk.pgsl" }

func snap(seq uint64) snapshot.Snapshot {
	return snapshot.Snapshot{Sequence: seq, Sources: map[snapshot.SourceID]snapshot.SourceReading{}}
}

func TestRecorderWritesInOrder(t *testing.T) {
	w := &failingWriter{failAt: -1}
	r, err := Start(Options{Writer: w, QueueSize: 16})
	require.NoError(t, err)

	for i := uint64(0); i < 10; i++ {
		r.Record(snap(i))
	}
	require.NoError(t, r.Close())

	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, w.appended)
	assert.Equal(t, 1, w.closes)
	written, dropped := r.Stats()
	assert.Equal(t, uint64(10), written)
	assert.Zero(t, dropped)

	// Record after Close is ignored.
	r.Record(snap(10))
	require.NoError(t, r.Close())
}

func TestWriteFailureWarnsOnceAndDisables(t *testing.T) {
	w := &failingWriter{failAt: 4}
	var warnings atomic.Int32
	r, err := Start(Options{
		Writer:     w,
		QueueSize:  32,
		OnDisabled: func(error) { warnings.Add(1) },
	})
	require.NoError(t, err)

	for i := uint64(0); i < 12; i++ {
		r.Record(snap(i))
	}
	require.NoError(t, r.Close())

	assert.Equal(t, int32(1), warnings.Load())
	assert.Equal(t, []uint64{0, 1, 2, 3}, w.appended)
	assert.Equal(t, 5, w.attempts)
	assert.Equal(t, 1, w.closes)

	disabled, cause := r.Disabled()
	assert.True(t, disabled)
	assert.True(t, errors.Is(cause, errors.ErrCodeRecorderIO))
}

func TestUnencodableSnapshotIsSkipped(t *testing.T) {
	w := &failingWriter{failAt: -1, unencodable: map[uint64]bool{2: true}}
	var warnings atomic.Int32
	r, err := Start(Options{
		Writer:     w,
		QueueSize:  16,
		OnDisabled: func(error) { warnings.Add(1) },
	})
	require.NoError(t, err)

	for i := uint64(0); i < 5; i++ {
		r.Record(snap(i))
	}
	require.NoError(t, r.Close())

	assert.Zero(t, warnings.Load())
	assert.Equal(t, []uint64{0, 1, 3, 4}, w.appended)
	assert.Equal(t, uint64(1), r.Skipped())
	disabled, _ := r.Disabled()
	assert.False(t, disabled)
}

func TestRecordNeverBlocks(t *testing.T) {
	w := &failingWriter{failAt: -1, block: make(chan struct{})}
	r, err := Start(Options{Writer: w, QueueSize: 2})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := uint64(0); i < 50; i++ {
			r.Record(snap(i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a stalled writer")
	}

	close(w.block)
	require.NoError(t, r.Close())
	_, dropped := r.Stats()
	assert.Positive(t, dropped)
}

func TestRecorderWithSessionLog(t *testing.T) {
	dir := t.TempDir()
	r, err := Start(Options{Session: sessionlog.SessionOptions{Dir: dir, Label: "local"}})
	require.NoError(t, err)
	for i := uint64(0); i < 3; i++ {
		r.Record(snap(i))
	}
	require.NoError(t, r.Close())

	reader, err := sessionlog.Open(r.Path())
	require.NoError(t, err)
	defer reader.Close()
	assert.Equal(t, 3, reader.Len())

	meta, err := sessionlog.ReadMeta(sessionlog.MetaPath(r.Path()))
	require.NoError(t, err)
	assert.True(t, meta.Closed)
}

func TestStartFailsOnUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := dir + "/file"
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := Start(Options{Session: sessionlog.SessionOptions{Dir: blocker, Label: "local"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeSessionOpen))
}
