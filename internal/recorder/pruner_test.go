package recorder

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/pgpulse/internal/sessionlog"
	"github.com/grovetools/pgpulse/testutil"
)

func closedSession(t *testing.T, dir string, started time.Time) string {
	t.Helper()
	w, err := sessionlog.Create(sessionlog.SessionOptions{Dir: dir, Label: "local", StartedAt: started})
	require.NoError(t, err)
	require.NoError(t, w.Append(snap(0)))
	require.NoError(t, w.Close())
	return w.Path()
}

func TestPruneRemovesOnlyExpiredClosedSessions(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	old := closedSession(t, dir, now.Add(-72*time.Hour))
	testutil.Backdate(t, old, now.Add(-71*time.Hour))
	recent := closedSession(t, dir, now.Add(-2*time.Hour))

	live, err := sessionlog.Create(sessionlog.SessionOptions{Dir: dir, Label: "local", StartedAt: now.Add(-100 * time.Hour)})
	require.NoError(t, err)
	defer live.Close()
	// An mtime far in the past must not matter while the writer holds the lock.
	past := now.Add(-100 * time.Hour)
	require.NoError(t, os.Chtimes(live.Path(), past, past))

	p := NewPruner(dir, 48*time.Hour)
	removed, err := p.PruneOnce()
	require.NoError(t, err)
	assert.Equal(t, []string{old}, removed)

	_, err = os.Stat(recent)
	assert.NoError(t, err)
	_, err = os.Stat(live.Path())
	assert.NoError(t, err)
}

func TestPruneSkipsActivePath(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	path := closedSession(t, dir, now.Add(-72*time.Hour))
	testutil.Backdate(t, path, now.Add(-72*time.Hour))

	p := NewPruner(dir, time.Hour).WithActive(func() string { return path })
	removed, err := p.PruneOnce()
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestPruneDisabled(t *testing.T) {
	dir := t.TempDir()
	path := closedSession(t, dir, time.Now().Add(-72*time.Hour))
	testutil.Backdate(t, path, time.Now().Add(-72*time.Hour))

	p := NewPruner(dir, 0)
	removed, err := p.PruneOnce()
	require.NoError(t, err)
	assert.Empty(t, removed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx, time.Millisecond)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestPruneRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	path := closedSession(t, dir, time.Now().Add(-72*time.Hour))
	testutil.Backdate(t, path, time.Now().Add(-72*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewPruner(dir, time.Hour).Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
