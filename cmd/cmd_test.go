package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/pgpulse/config"
	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/testutil"
)

// isolate points every pgpulse directory at a temp root so tests never read
// the developer's configuration.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("PGPULSE_HOME", home)
	return home
}

// run executes cmd under a root carrying the standard persistent flags.
func run(t *testing.T, sub *cobra.Command, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "pgpulse", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().BoolP("verbose", "v", false, "")
	root.PersistentFlags().StringP("config", "c", "", "")
	root.AddCommand(sub)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{sub.Name()}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestMonitorOptionsApply(t *testing.T) {
	isolate(t)

	t.Run("dsn adds a primary source", func(t *testing.T) {
		cfg := config.Default()
		opts := &monitorOptions{dsn: "postgres://localhost:5432/postgres", interval: 2 * time.Second}
		require.NoError(t, opts.apply(cfg))

		require.Len(t, cfg.Sources, 1)
		assert.Equal(t, "primary", cfg.Sources[0].ID)
		assert.Equal(t, 2*time.Second, cfg.RefreshInterval.Std())
		assert.False(t, cfg.Recording.Enabled)
	})

	t.Run("dsn replaces the configured primary", func(t *testing.T) {
		cfg := config.Default()
		cfg.Sources = []config.SourceConfig{
			{ID: "main", Kind: config.KindPrimary, Params: map[string]interface{}{"dsn": "postgres://old:5432/db"}},
		}
		opts := &monitorOptions{dsn: "postgres://new:5432/db"}
		require.NoError(t, opts.apply(cfg))

		require.Len(t, cfg.Sources, 1)
		assert.Equal(t, "postgres://new:5432/db", cfg.Sources[0].StringParam("dsn"))
	})

	t.Run("daemon forces recording and file logging", func(t *testing.T) {
		cfg := config.Default()
		opts := &monitorOptions{dsn: "postgres://db.example.com:5433/app", daemon: true, listen: "unix:/tmp/p.sock"}
		require.NoError(t, opts.apply(cfg))

		assert.True(t, cfg.Recording.Enabled)
		assert.True(t, cfg.Logging.File.Enabled)
		assert.Contains(t, cfg.Logging.File.Path, "pgpulse-db_example_com_5433")
		assert.Equal(t, "unix:/tmp/p.sock", cfg.Server.Listen)
		assert.Contains(t, pidFilePath(cfg), "daemon-db_example_com_5433.pid")
	})

	t.Run("no sources", func(t *testing.T) {
		err := (&monitorOptions{}).apply(config.Default())
		assert.True(t, errors.Is(err, errors.ErrCodeConfigValidation))
	})

	t.Run("interval below the minimum", func(t *testing.T) {
		opts := &monitorOptions{dsn: "postgres://localhost/postgres", interval: time.Millisecond}
		err := opts.apply(config.Default())
		assert.True(t, errors.Is(err, errors.ErrCodeConfigValidation))
	})
}

func TestPidFilePathPrefersConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Daemon.PidFile = "/run/pgpulse.pid"
	assert.Equal(t, "/run/pgpulse.pid", pidFilePath(cfg))
}

func TestSessionsList(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	testutil.WriteSession(t, dir, "db_5433", 3)

	out, err := run(t, NewSessionsCmd(), "list", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "LABEL")
	assert.Contains(t, out, "db_5433")
	assert.Contains(t, out, "closed")

	out, err = run(t, NewSessionsCmd(), "list", "--dir", dir, "--label", "other")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions")
}

func TestSessionsPrune(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	old := testutil.WriteSession(t, dir, "db", 2)
	testutil.Backdate(t, old, time.Now().Add(-72*time.Hour))
	fresh := testutil.WriteSession(t, dir, "other", 2)

	out, err := run(t, NewSessionsCmd(), "prune", "--dir", dir, "--retention-hours", "24", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, old)
	assert.NotContains(t, out, fresh)
	assert.FileExists(t, old)

	out, err = run(t, NewSessionsCmd(), "prune", "--dir", dir, "--retention-hours", "24")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 1 session(s)")
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)

	out, err = run(t, NewSessionsCmd(), "prune", "--dir", dir, "--retention-hours=-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Retention is disabled")
}

func TestConfigValidate(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "pgpulse.yml")
	require.NoError(t, os.WriteFile(path, []byte(`refresh_interval: 2s
sources:
  - kind: system
`), 0644))

	out, err := run(t, NewConfigCmd(), "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "Source system")

	bad := filepath.Join(t.TempDir(), "pgpulse.yml")
	require.NoError(t, os.WriteFile(bad, []byte("sources:\n  - kind: mainframe\n"), 0644))
	_, err = run(t, NewConfigCmd(), "validate", bad)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigValidation))
}

func TestConfigValidateWithoutFile(t *testing.T) {
	isolate(t)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	_, err = run(t, NewConfigCmd(), "validate")
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestConfigSchema(t *testing.T) {
	out, err := run(t, NewConfigCmd(), "schema")
	require.NoError(t, err)

	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Contains(t, out, "refresh_interval")
}

func TestPathsCommand(t *testing.T) {
	home := isolate(t)
	out, err := run(t, NewPathsCmd())
	require.NoError(t, err)

	var got PathsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, filepath.Join(home, "data", "pgpulse", "sessions"), got.SessionsDir)
}
