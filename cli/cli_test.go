package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/pgpulse/errors"
)

func TestErrorHandlerMessages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		verbose  bool
		contains []string
	}{
		{
			name:     "config not found",
			err:      errors.ConfigNotFound("/etc/pgpulse.yml"),
			contains: []string{"configuration not found", "--dsn"},
		},
		{
			name:     "session in use",
			err:      errors.SessionInUse("/data/s.pgsl", 42),
			contains: []string{"still being recorded", "pgpulse attach"},
		},
		{
			name:     "validation with path",
			err:      errors.New(errors.ErrCodeConfigValidation, "bad interval").WithDetail("path", "pgpulse.yml"),
			contains: []string{"bad interval", "Check pgpulse.yml"},
		},
		{
			name:     "verbose details",
			err:      errors.ProducerClaimed("live", "replay"),
			verbose:  true,
			contains: []string{"Only one live session", "Error details", "BUS_PRODUCER_CLAIMED"},
		},
		{
			name:     "plain error",
			err:      assert.AnError,
			contains: []string{"Error: " + assert.AnError.Error()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &ErrorHandler{Verbose: tt.verbose, Out: &buf}

			assert.Equal(t, tt.err, h.Handle(tt.err))
			for _, want := range tt.contains {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestErrorHandlerNil(t *testing.T) {
	var buf bytes.Buffer
	h := &ErrorHandler{Out: &buf}
	assert.NoError(t, h.Handle(nil))
	assert.Empty(t, buf.String())
}

func newRoot(t *testing.T) *cobra.Command {
	t.Helper()
	root := NewStandardCommand("pgpulse", "test root")
	root.RunE = func(cmd *cobra.Command, args []string) error { return nil }
	return root
}

func TestLoadConfigFromFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("refresh_interval: 2s\n"), 0644))

	root := newRoot(t)
	require.NoError(t, root.ParseFlags([]string{"--config", path, "-v"}))

	cfg, got, err := LoadConfig(root)
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, 2*time.Second, cfg.RefreshInterval.Std())
	assert.True(t, GetOptions(root).Verbose)
}

func TestLoadConfigMissingFlagFile(t *testing.T) {
	root := newRoot(t)
	require.NoError(t, root.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "nope.yml")}))

	_, _, err := LoadConfig(root)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestWrapText(t *testing.T) {
	wrapped := wrapText("one two three four five", 9)
	assert.Equal(t, "one two\nthree\nfour five", wrapped)
	assert.Equal(t, "short\n\nkept", wrapText("short\n\nkept", 20))
}

func TestParseDescription(t *testing.T) {
	desc, examples := parseDescription("Record a session.\n\nExamples:\n  pgpulse monitor --record")
	assert.Equal(t, "Record a session.", desc)
	assert.Equal(t, "pgpulse monitor --record", examples)

	desc, examples = parseDescription("No examples here.")
	assert.Equal(t, "No examples here.", desc)
	assert.Empty(t, examples)
}

func TestStyledHelpListsCommandsAndFlags(t *testing.T) {
	root := newRoot(t)
	sub := &cobra.Command{Use: "sessions", Short: "Manage recorded sessions", RunE: func(*cobra.Command, []string) error { return nil }}
	sub.Flags().Duration("older-than", time.Hour, "Prune sessions older than this")
	root.AddCommand(sub)
	ApplyStyledHelpRecursive(root)

	var buf bytes.Buffer
	root.SetOut(&buf)
	styledHelpFunc(root, nil)
	assert.Contains(t, buf.String(), "PGPULSE")
	assert.Contains(t, buf.String(), "sessions")
	assert.Contains(t, buf.String(), "Manage recorded sessions")

	buf.Reset()
	sub.SetOut(&buf)
	styledHelpFunc(sub, nil)
	assert.Contains(t, buf.String(), "--older-than")
	assert.Contains(t, buf.String(), "(default: 1h0m0s)")
}

func TestVersionCommand(t *testing.T) {
	cmd := NewVersionCommand("pgpulse")
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--json"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), `"version"`)
}

func TestStyledHelpListsKeys(t *testing.T) {
	root := newRoot(t)
	sub := &cobra.Command{
		Use:         "replay",
		Short:       "Replay a recorded session",
		Annotations: map[string]string{KeysAnnotation: "[\tstep back\nq\tquit"},
		RunE:        func(*cobra.Command, []string) error { return nil },
	}
	root.AddCommand(sub)

	var buf bytes.Buffer
	sub.SetOut(&buf)
	styledHelpFunc(sub, nil)
	assert.Contains(t, buf.String(), "KEYS")
	assert.Contains(t, buf.String(), "step back")
	assert.Contains(t, buf.String(), "quit")
}
