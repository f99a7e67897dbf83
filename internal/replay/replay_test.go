package replay

import (
	"os"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/internal/daemon/bus"
	"github.com/grovetools/pgpulse/internal/sessionlog"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func recorded(seq uint64, step time.Duration) snapshot.Snapshot {
	at := epoch.Add(time.Duration(seq) * step)
	return snapshot.Snapshot{
		Sequence:   seq,
		CapturedAt: snapshot.LogicalTime{Wall: at, Mono: time.Duration(seq) * step},
		Sources: map[snapshot.SourceID]snapshot.SourceReading{
			snapshot.SourcePrimary: {
				Status:    snapshot.StatusOK,
				Fields:    map[string]snapshot.Value{"xact_commit": snapshot.Counter(int64(seq * 10))},
				FetchedAt: at,
			},
			snapshot.SourceSystem: {
				Status:    snapshot.StatusStale,
				Fields:    map[string]snapshot.Value{"load1": snapshot.Gauge(0.5)},
				FetchedAt: epoch,
				Error:     "timeout",
			},
		},
		Interval: step,
	}
}

// writeLog records n Snapshots step apart and returns the closed log path.
func writeLog(t *testing.T, n int, step time.Duration) (string, []snapshot.Snapshot) {
	t.Helper()
	w, err := sessionlog.Create(sessionlog.SessionOptions{Dir: t.TempDir(), Label: "local", StartedAt: epoch})
	require.NoError(t, err)
	var snaps []snapshot.Snapshot
	for i := 0; i < n; i++ {
		s := recorded(uint64(i), step)
		snaps = append(snaps, s)
		require.NoError(t, w.Append(s))
	}
	require.NoError(t, w.Close())
	return w.Path(), snaps
}

func openLog(t *testing.T, path string) *Log {
	t.Helper()
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestStepReplaysRecordingInOrder(t *testing.T) {
	path, want := writeLog(t, 25, time.Second)
	l := openLog(t, path)
	c, err := l.NewCursor()
	require.NoError(t, err)

	got := []snapshot.Snapshot{c.Current()}
	for i := 1; i < len(want); i++ {
		s, clamped := c.Step(+1)
		require.False(t, clamped)
		got = append(got, s)
	}
	assert.Equal(t, want, got)

	_, clamped := c.Step(+1)
	assert.True(t, clamped)
	assert.False(t, l.Interrupted())
}

func TestSeekSequenceClampsProperty(t *testing.T) {
	const n = 12
	path, _ := writeLog(t, n, time.Second)
	l := openLog(t, path)
	c, err := l.NewCursor()
	require.NoError(t, err)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("seek lands on k or the nearest bound", prop.ForAll(
		func(k int64) bool {
			got := c.SeekSequence(k).Sequence
			cur := c.Current().Sequence
			switch {
			case k < 0:
				return got == 0 && cur == 0
			case k > n-1:
				return got == n-1 && cur == n-1
			default:
				return got == uint64(k) && cur == uint64(k)
			}
		},
		gen.Int64Range(-50, 50),
	))

	properties.TestingRun(t)
}

func TestSeekTimeAndJumps(t *testing.T) {
	path, _ := writeLog(t, 10, time.Second)
	l := openLog(t, path)
	c, err := l.NewCursor()
	require.NoError(t, err)

	assert.Equal(t, uint64(4), c.SeekTime(epoch.Add(3500*time.Millisecond)).Sequence)
	assert.Equal(t, uint64(0), c.SeekTime(epoch.Add(-time.Hour)).Sequence)
	assert.Equal(t, uint64(9), c.SeekTime(epoch.Add(time.Hour)).Sequence)

	assert.Equal(t, uint64(0), c.JumpToStart().Sequence)
	assert.Equal(t, uint64(9), c.JumpToEnd().Sequence)
	pos, total := c.Position()
	assert.Equal(t, 9, pos)
	assert.Equal(t, 10, total)

	first, last := l.Span()
	assert.Equal(t, epoch, first)
	assert.Equal(t, epoch.Add(9*time.Second), last)
}

func TestCursorsAreIndependent(t *testing.T) {
	path, _ := writeLog(t, 10, time.Second)
	l := openLog(t, path)
	a, err := l.NewCursor()
	require.NoError(t, err)
	b, err := l.NewCursor()
	require.NoError(t, err)

	a.SeekSequence(7)
	b.Step(2)
	assert.Equal(t, uint64(7), a.Current().Sequence)
	assert.Equal(t, uint64(2), b.Current().Sequence)
}

func TestTruncatedRecordingReplaysCompleteFrames(t *testing.T) {
	path, want := writeLog(t, 10, time.Second)
	frame, err := sessionlog.EncodeFrame(recorded(10, time.Second))
	require.NoError(t, err)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write(frame[:len(frame)-3])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	l := openLog(t, path)
	assert.Equal(t, 10, l.Len())
	ended, cause := l.EndedEarly()
	assert.True(t, ended)
	assert.True(t, errors.Is(cause, errors.ErrCodeReplayTruncated))
	assert.True(t, l.Interrupted())

	c, err := l.NewCursor()
	require.NoError(t, err)
	assert.Equal(t, want[9], c.JumpToEnd())
}

func TestOpenRefusesLogBeingRecorded(t *testing.T) {
	w, err := sessionlog.Create(sessionlog.SessionOptions{Dir: t.TempDir(), Label: "local"})
	require.NoError(t, err)
	require.NoError(t, w.Append(recorded(0, time.Second)))

	_, err = Open(w.Path())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeSessionInUse))

	require.NoError(t, w.Close())
	l, err := Open(w.Path())
	require.NoError(t, err)
	l.Close()
}

func TestStaleLockOpensAsInterrupted(t *testing.T) {
	path, _ := writeLog(t, 3, time.Second)
	require.NoError(t, os.WriteFile(sessionlog.LockPath(path), []byte("4194304"), 0644))

	l := openLog(t, path)
	assert.True(t, l.Interrupted())
	assert.Equal(t, 3, l.Len())
}

func TestOpenEmptyLogFails(t *testing.T) {
	w, err := sessionlog.Create(sessionlog.SessionOptions{Dir: t.TempDir(), Label: "local"})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = Open(w.Path())
	assert.True(t, errors.Is(err, errors.ErrCodeSessionOpen))
}

func TestPlayRejectsNonPositiveSpeed(t *testing.T) {
	path, _ := writeLog(t, 3, time.Second)
	c, err := openLog(t, path).NewCursor()
	require.NoError(t, err)

	for _, speed := range []float64{0, -1} {
		err := c.Play(speed)
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidNavigation))
	}
	assert.False(t, c.Playing())
}

func TestPlayAdvancesAndStopsAtEnd(t *testing.T) {
	path, _ := writeLog(t, 5, 20*time.Millisecond)
	c, err := openLog(t, path).NewCursor()
	require.NoError(t, err)

	b := bus.New(16)
	sub := b.Subscribe("viewer")
	pub, err := b.Claim("replay")
	require.NoError(t, err)
	c.Attach(pub)

	require.NoError(t, c.Play(4))
	assert.Eventually(t, func() bool {
		return !c.Playing() && c.Current().Sequence == 4
	}, 2*time.Second, 5*time.Millisecond)

	var seqs []uint64
	var seeks int
	for len(sub.C()) > 0 {
		d := <-sub.C()
		seqs = append(seqs, d.Snapshot.Sequence)
		if d.Seek {
			seeks++
		}
	}
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, seqs)
	assert.Equal(t, 1, seeks)
}

func TestPauseStopsPlayback(t *testing.T) {
	path, _ := writeLog(t, 50, time.Hour)
	c, err := openLog(t, path).NewCursor()
	require.NoError(t, err)

	require.NoError(t, c.Play(1))
	assert.True(t, c.Playing())
	c.Pause()
	assert.False(t, c.Playing())
	assert.Equal(t, uint64(0), c.Current().Sequence)

	playing, err := c.Toggle()
	require.NoError(t, err)
	assert.True(t, playing)
	assert.Equal(t, 1.0, c.Speed())
	playing, err = c.Toggle()
	require.NoError(t, err)
	assert.False(t, playing)
}

func TestBackwardSeekReachesSubscribers(t *testing.T) {
	path, _ := writeLog(t, 10, time.Second)
	c, err := openLog(t, path).NewCursor()
	require.NoError(t, err)

	b := bus.New(16)
	sub := b.Subscribe("viewer")
	pub, err := b.Claim("replay")
	require.NoError(t, err)
	c.Attach(pub)

	c.SeekSequence(8)
	c.Step(-5)

	var seqs []uint64
	for len(sub.C()) > 0 {
		seqs = append(seqs, (<-sub.C()).Snapshot.Sequence)
	}
	assert.Equal(t, []uint64{0, 8, 3}, seqs)
}

func TestSetSpeedKeepsPausedCursor(t *testing.T) {
	path, _ := writeLog(t, 5, time.Second)
	c, err := openLog(t, path).NewCursor()
	require.NoError(t, err)

	require.NoError(t, c.SetSpeed(8))
	assert.False(t, c.Playing())
	assert.Equal(t, 8.0, c.Speed())
	assert.Equal(t, uint64(0), c.Current().Sequence)

	err = c.SetSpeed(0)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidNavigation))
	assert.Equal(t, 8.0, c.Speed())
}

func TestPlayFollowsMonotonicOffsets(t *testing.T) {
	w, err := sessionlog.Create(sessionlog.SessionOptions{Dir: t.TempDir(), Label: "local", StartedAt: epoch})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		s := recorded(uint64(i), 10*time.Millisecond)
		// The wall clock jumped an hour per tick; only 10ms really passed.
		s.CapturedAt.Wall = epoch.Add(time.Duration(i) * time.Hour)
		require.NoError(t, w.Append(s))
	}
	require.NoError(t, w.Close())

	c, err := openLog(t, w.Path()).NewCursor()
	require.NoError(t, err)
	require.NoError(t, c.Play(1))
	assert.Eventually(t, func() bool {
		return !c.Playing() && c.Current().Sequence == 3
	}, time.Second, 5*time.Millisecond)
}

func TestStepDirectionSetsSeekFlag(t *testing.T) {
	path, _ := writeLog(t, 6, time.Second)
	c, err := openLog(t, path).NewCursor()
	require.NoError(t, err)

	b := bus.New(16)
	sub := b.Subscribe("viewer")
	pub, err := b.Claim("replay")
	require.NoError(t, err)
	c.Attach(pub)
	<-sub.C()

	c.Step(+1)
	c.Step(+1)
	c.Step(-1)
	c.JumpToEnd()

	var seqs []uint64
	var seeks []bool
	for len(sub.C()) > 0 {
		d := <-sub.C()
		seqs = append(seqs, d.Snapshot.Sequence)
		seeks = append(seeks, d.Seek)
	}
	assert.Equal(t, []uint64{1, 2, 1, 5}, seqs)
	assert.Equal(t, []bool{false, false, true, false}, seeks)
}

func TestPlaybackStopsWhenFramesCannotBeRead(t *testing.T) {
	path, _ := writeLog(t, 20, 10*time.Millisecond)
	l := openLog(t, path)
	c, err := l.NewCursor()
	require.NoError(t, err)

	require.NoError(t, l.Close())
	require.NoError(t, c.Play(1))

	assert.Eventually(t, func() bool { return !c.Playing() }, time.Second, 5*time.Millisecond)
	assert.Error(t, c.Err())
	assert.Equal(t, uint64(0), c.Current().Sequence)
	pos, _ := c.Position()
	assert.Zero(t, pos)
}
