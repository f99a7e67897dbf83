package config

import (
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/grovetools/pgpulse/logging"
)

// Source kinds understood by the collector registry.
const (
	KindPrimary = "primary"
	KindPooler  = "pooler"
	KindSystem  = "system"
	KindCloud   = "cloud"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("750ms", "1s") in YAML, TOML and JSON.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// JSONSchema describes Duration as a duration string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration string, e.g. 500ms, 1s, 2m",
	}
}

// Config is the root of pgpulse.yml.
type Config struct {
	RefreshInterval    Duration        `yaml:"refresh_interval" toml:"refresh_interval" json:"refresh_interval" jsonschema:"description=Tick cadence of the live scheduler"`
	CompositionTimeout Duration        `yaml:"composition_timeout" toml:"composition_timeout" json:"composition_timeout" jsonschema:"description=Optional tick deadline shorter than the refresh interval (0 uses the interval)"`
	Sources            []SourceConfig  `yaml:"sources" toml:"sources" json:"sources" jsonschema:"description=Monitored backends"`
	Recording          RecordingConfig `yaml:"recording" toml:"recording" json:"recording"`
	Server             ServerConfig    `yaml:"server" toml:"server" json:"server"`
	Daemon             DaemonConfig    `yaml:"daemon" toml:"daemon" json:"daemon"`
	Logging            logging.Config  `yaml:"logging" toml:"logging" json:"logging"`
}

// SourceConfig configures one collector.
type SourceConfig struct {
	ID      string                 `yaml:"id" toml:"id" json:"id" jsonschema:"description=Source identifier such as primary or pool"`
	Kind    string                 `yaml:"kind" toml:"kind" json:"kind" jsonschema:"enum=primary,enum=pooler,enum=system,enum=cloud"`
	Timeout Duration               `yaml:"timeout" toml:"timeout" json:"timeout" jsonschema:"description=Per-source fetch timeout clamped to the tick deadline"`
	Params  map[string]interface{} `yaml:"params,omitempty" toml:"params,omitempty" json:"params,omitempty" jsonschema:"description=Collector-specific options"`
}

// DecodeParams decodes the free-form params block into a typed options struct.
// Duration strings are converted into time.Duration fields.
func (s SourceConfig) DecodeParams(out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(s.Params)
}

// StringParam returns a string param or "" when absent.
func (s SourceConfig) StringParam(key string) string {
	if v, ok := s.Params[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// RecordingConfig configures the session recorder and retention pruner.
type RecordingConfig struct {
	Enabled        bool     `yaml:"enabled" toml:"enabled" json:"enabled"`
	Dir            string   `yaml:"dir" toml:"dir" json:"dir" jsonschema:"description=Root directory for session logs"`
	Label          string   `yaml:"label,omitempty" toml:"label,omitempty" json:"label,omitempty" jsonschema:"description=Subdirectory label; derived from the primary host when empty"`
	RetentionHours int      `yaml:"retention_hours" toml:"retention_hours" json:"retention_hours" jsonschema:"minimum=-1,description=Closed sessions older than this many hours are pruned (-1 disables pruning)"`
	QueueSize      int      `yaml:"queue_size" toml:"queue_size" json:"queue_size" jsonschema:"minimum=1"`
	PruneInterval  Duration `yaml:"prune_interval" toml:"prune_interval" json:"prune_interval"`
	MetaFlushEvery int      `yaml:"meta_flush_every" toml:"meta_flush_every" json:"meta_flush_every" jsonschema:"minimum=1,description=Rewrite the metadata sidecar every N frames"`
}

// RetentionHorizon returns the retention window as a duration.
// A negative value disables pruning and yields 0.
func (r RecordingConfig) RetentionHorizon() time.Duration {
	if r.RetentionHours < 0 {
		return 0
	}
	return time.Duration(r.RetentionHours) * time.Hour
}

// ServerConfig configures the remote viewer endpoint.
type ServerConfig struct {
	Listen string `yaml:"listen,omitempty" toml:"listen,omitempty" json:"listen,omitempty" jsonschema:"description=unix:/path.sock or host:port; empty disables the server"`
}

// DaemonConfig configures headless mode.
type DaemonConfig struct {
	PidFile string `yaml:"pid_file,omitempty" toml:"pid_file,omitempty" json:"pid_file,omitempty"`
}

// Source returns the source config with the given id.
func (c *Config) Source(id string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// TickDeadline returns the per-tick composition deadline: the refresh interval,
// or the composition timeout when it is set and shorter.
func (c *Config) TickDeadline() time.Duration {
	deadline := c.RefreshInterval.Std()
	if ct := c.CompositionTimeout.Std(); ct > 0 && ct < deadline {
		deadline = ct
	}
	return deadline
}
