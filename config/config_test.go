package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/pgpulse/errors"
)

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	t.Setenv("PGPULSE_HOME", t.TempDir())
	t.Setenv("PG_DSN", "postgres://monitor@db1:5432/postgres")

	cfg, err := LoadFromBytes([]byte(`
refresh_interval: 2s
sources:
  - kind: primary
    params:
      dsn: ${PG_DSN}
  - kind: system
recording:
  enabled: true
`), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.RefreshInterval.Std())
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "primary", cfg.Sources[0].ID)
	assert.Equal(t, "postgres://monitor@db1:5432/postgres", cfg.Sources[0].StringParam("dsn"))
	assert.Equal(t, "system", cfg.Sources[1].ID)
	assert.Equal(t, 2*time.Second, cfg.Sources[1].Timeout.Std())
	assert.Equal(t, DefaultRetentionHours, cfg.Recording.RetentionHours)
	assert.Equal(t, DefaultQueueSize, cfg.Recording.QueueSize)
	assert.NotEmpty(t, cfg.Recording.Dir)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadTOML(t *testing.T) {
	t.Setenv("PGPULSE_HOME", t.TempDir())

	cfg, err := LoadFromBytes([]byte(`
refresh_interval = "500ms"
composition_timeout = "300ms"

[[sources]]
id = "pool"
kind = "pooler"
timeout = "5s"
[sources.params]
dsn = "postgres://pgbouncer@db1:6432/pgbouncer"
`), FormatTOML)
	require.NoError(t, err)

	assert.Equal(t, 300*time.Millisecond, cfg.TickDeadline())
	src, ok := cfg.Source("pool")
	require.True(t, ok)
	assert.Equal(t, KindPooler, src.Kind)
	assert.Equal(t, 5*time.Second, src.Timeout.Std())
}

func TestValidationErrors(t *testing.T) {
	t.Setenv("PGPULSE_HOME", t.TempDir())

	tests := []struct {
		name string
		yaml string
		code errors.ErrorCode
	}{
		{"unknown kind", "sources: [{kind: mysql}]", errors.ErrCodeConfigValidation},
		{"missing dsn", "sources: [{kind: primary}]", errors.ErrCodeConfigValidation},
		{"duplicate id", "sources: [{kind: system}, {kind: system}]", errors.ErrCodeConfigValidation},
		{"cloud without url", "sources: [{kind: cloud}]", errors.ErrCodeConfigValidation},
		{"interval too small", "refresh_interval: 1ms", errors.ErrCodeConfigValidation},
		{"label with slash", "recording: {label: a/b}", errors.ErrCodeConfigValidation},
		{"unknown top-level key", "refresh: 1s", errors.ErrCodeConfigInvalid},
		{"bad duration", "refresh_interval: soon", errors.ErrCodeConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.yaml), FormatYAML)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestRetentionDisabled(t *testing.T) {
	t.Setenv("PGPULSE_HOME", t.TempDir())

	cfg, err := LoadFromBytes([]byte("recording: {retention_hours: -5}"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.Recording.RetentionHours)
	assert.Zero(t, cfg.Recording.RetentionHorizon())

	// Finalize is idempotent.
	require.NoError(t, cfg.Finalize())
	assert.Equal(t, -1, cfg.Recording.RetentionHours)
}

func TestFindConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PGPULSE_HOME", home)
	work := t.TempDir()

	_, err := FindConfigFile(work)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))

	cfg, path, err := LoadFrom(work)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, DefaultRefreshInterval, cfg.RefreshInterval.Std())

	globalDir := filepath.Join(home, "config", "pgpulse")
	require.NoError(t, os.MkdirAll(globalDir, 0755))
	globalPath := filepath.Join(globalDir, "pgpulse.toml")
	require.NoError(t, os.WriteFile(globalPath, []byte(`refresh_interval = "3s"`), 0644))

	found, err := FindConfigFile(work)
	require.NoError(t, err)
	assert.Equal(t, globalPath, found)

	localPath := filepath.Join(work, "pgpulse.yml")
	require.NoError(t, os.WriteFile(localPath, []byte("refresh_interval: 4s\n"), 0644))

	cfg, path, err = LoadFrom(work)
	require.NoError(t, err)
	assert.Equal(t, localPath, path)
	assert.Equal(t, 4*time.Second, cfg.RefreshInterval.Std())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestDecodeParams(t *testing.T) {
	src := SourceConfig{Params: map[string]interface{}{
		"dsn":              "postgres://x",
		"connect_timeout":  "2s",
		"exclude_settings": []interface{}{"*ssl*"},
	}}

	var opts struct {
		DSN             string        `mapstructure:"dsn"`
		ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
		ExcludeSettings []string      `mapstructure:"exclude_settings"`
	}
	require.NoError(t, src.DecodeParams(&opts))
	assert.Equal(t, "postgres://x", opts.DSN)
	assert.Equal(t, 2*time.Second, opts.ConnectTimeout)
	assert.Equal(t, []string{"*ssl*"}, opts.ExcludeSettings)

	src.Params["bogus"] = 1
	assert.Error(t, src.DecodeParams(&opts))
}

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"refresh_interval"`)
	assert.Contains(t, string(data), `"pooler"`)
}
