package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/pkg/paths"
)

var sourceIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Defaults applied by SetDefaults.
const (
	DefaultRefreshInterval = time.Second
	DefaultRetentionHours  = 48
	DefaultQueueSize       = 256
	DefaultPruneInterval   = 10 * time.Minute
	DefaultMetaFlushEvery  = 16
)

// defaultSourceIDs maps a kind to the source key used when id is omitted.
var defaultSourceIDs = map[string]string{
	KindPrimary: "primary",
	KindPooler:  "pool",
	KindSystem:  "system",
	KindCloud:   "cloud",
}

// SetDefaults fills every zero-valued setting with its default.
func (c *Config) SetDefaults() {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = Duration(DefaultRefreshInterval)
	}
	if c.CompositionTimeout < 0 {
		c.CompositionTimeout = 0
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		src := &c.Sources[i]
		src.Kind = strings.ToLower(strings.TrimSpace(src.Kind))
		if src.ID == "" {
			src.ID = defaultSourceIDs[src.Kind]
		}
		if src.Timeout <= 0 {
			src.Timeout = Duration(c.TickDeadline())
		}
	}

	if c.Recording.Dir == "" {
		c.Recording.Dir = paths.SessionsDir()
	} else {
		c.Recording.Dir = paths.Expand(c.Recording.Dir)
	}
	if c.Recording.RetentionHours < 0 {
		c.Recording.RetentionHours = -1
	} else if c.Recording.RetentionHours == 0 {
		c.Recording.RetentionHours = DefaultRetentionHours
	}
	if c.Recording.QueueSize <= 0 {
		c.Recording.QueueSize = DefaultQueueSize
	}
	if c.Recording.PruneInterval <= 0 {
		c.Recording.PruneInterval = Duration(DefaultPruneInterval)
	}
	if c.Recording.MetaFlushEvery <= 0 {
		c.Recording.MetaFlushEvery = DefaultMetaFlushEvery
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format.Preset == "" {
		c.Logging.Format.Preset = "default"
	}
	if c.Logging.Format.StructuredToStderr == "" {
		c.Logging.Format.StructuredToStderr = "auto"
	}
}

// Validate checks structural constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.RefreshInterval.Std() < 10*time.Millisecond {
		return errors.New(errors.ErrCodeConfigValidation, "refresh_interval must be at least 10ms").
			WithDetail("refresh_interval", c.RefreshInterval.Std().String())
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if err := validateSource(src); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigValidation, fmt.Sprintf("invalid source #%d", i+1)).
				WithDetail("source", src.ID)
		}
		if seen[src.ID] {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("duplicate source id '%s'", src.ID)).
				WithDetail("source", src.ID)
		}
		seen[src.ID] = true
	}

	if c.Recording.Enabled && c.Recording.Dir == "" {
		return errors.New(errors.ErrCodeConfigValidation, "recording.dir is required when recording is enabled")
	}
	if strings.ContainsAny(c.Recording.Label, `/\`) {
		return errors.New(errors.ErrCodeConfigValidation, "recording.label must not contain path separators").
			WithDetail("label", c.Recording.Label)
	}
	return nil
}

func validateSource(src SourceConfig) error {
	if _, ok := defaultSourceIDs[src.Kind]; !ok {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unknown source kind '%s'", src.Kind)).
			WithDetail("kind", src.Kind)
	}
	if !sourceIDRegex.MatchString(src.ID) {
		return errors.New(errors.ErrCodeInvalidInput, "source id must start with a lowercase letter and contain only lowercase letters, numbers, underscores, and hyphens").
			WithDetail("id", src.ID)
	}
	switch src.Kind {
	case KindPrimary, KindPooler:
		if src.StringParam("dsn") == "" {
			return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("%s source requires params.dsn", src.Kind))
		}
	case KindCloud:
		if src.StringParam("url") == "" {
			return errors.New(errors.ErrCodeInvalidInput, "cloud source requires params.url")
		}
	}
	return nil
}
