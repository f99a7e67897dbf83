package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortableHome(t *testing.T) {
	root := t.TempDir()
	t.Setenv("PGPULSE_HOME", root)

	assert.Equal(t, filepath.Join(root, "config", "pgpulse"), ConfigDir())
	assert.Equal(t, filepath.Join(root, "data", "pgpulse", "sessions"), SessionsDir())
	assert.Equal(t, filepath.Join(root, "state", "pgpulse", "daemon-db1.pid"), PidFilePath("db1"))
	assert.Equal(t, filepath.Join(root, "state", "pgpulse", "daemon-default.pid"), PidFilePath(""))
}

func TestXDGOverrides(t *testing.T) {
	root := t.TempDir()
	t.Setenv("PGPULSE_HOME", "")
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))

	assert.Equal(t, filepath.Join(root, "data", "pgpulse"), DataDir())
	assert.Equal(t, filepath.Join(root, "state", "pgpulse", "logs"), LogDir())
}

func TestExpand(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	assert.Equal(t, filepath.Join(home, "x"), Expand("~/x"))
	assert.Equal(t, "/abs/path", Expand("/abs/path"))
	assert.Equal(t, "~user/x", Expand("~user/x"))
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	t.Setenv("PGPULSE_HOME", root)
	assert.NoError(t, EnsureDirs())
	assert.DirExists(t, SessionsDir())
	assert.DirExists(t, StateDir())
}
