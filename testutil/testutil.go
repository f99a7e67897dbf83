package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grovetools/pgpulse/internal/sessionlog"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// TestDSNEnv names the variable holding a connection string for tests that
// need a real PostgreSQL server.
const TestDSNEnv = "PGPULSE_TEST_DSN"

// RequirePostgres skips the test unless a server is configured and returns its DSN.
func RequirePostgres(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv(TestDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", TestDSNEnv)
	}
	return dsn
}

// RandomString generates a random hex string of the given length
func RandomString(length int) string {
	bytes := make([]byte, (length+1)/2)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)[:length]
}

// Snapshot builds a snapshot with a single healthy primary reading whose
// xact_commit counter equals seq.
func Snapshot(seq uint64, at time.Time, mono time.Duration) snapshot.Snapshot {
	return snapshot.Snapshot{
		Sequence:   seq,
		CapturedAt: snapshot.LogicalTime{Wall: at, Mono: mono},
		Sources: map[snapshot.SourceID]snapshot.SourceReading{
			snapshot.SourcePrimary: {
				Status:    snapshot.StatusOK,
				FetchedAt: at,
				Fields:    map[string]snapshot.Value{"xact_commit": snapshot.Counter(int64(seq))},
			},
		},
	}
}

// WriteSession records n snapshots one second apart under dir, closes the
// log and returns its path.
func WriteSession(t *testing.T, dir, label string, n int) string {
	t.Helper()

	start := time.Now().Add(-time.Duration(n+1) * time.Second)
	w, err := sessionlog.Create(sessionlog.SessionOptions{Dir: dir, Label: label, Interval: time.Second, StartedAt: start})
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		step := time.Duration(i) * time.Second
		require.NoError(t, w.Append(Snapshot(uint64(i), start.Add(step), step)))
	}
	path := w.Path()
	require.NoError(t, w.Close())
	return path
}

// Backdate rewrites a closed session's metadata so it appears to have ended at closedAt.
func Backdate(t *testing.T, path string, closedAt time.Time) {
	t.Helper()

	meta, err := sessionlog.ReadMeta(sessionlog.MetaPath(path))
	require.NoError(t, err)
	meta.ClosedAt = &closedAt
	require.NoError(t, sessionlog.WriteMeta(sessionlog.MetaPath(path), meta))
}
