package sessionlog

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/moby/patternmatcher"
	"gopkg.in/yaml.v3"
)

// Meta is the session metadata sidecar stored next to a log as
// <log>.meta.yaml.
type Meta struct {
	ID             string       `yaml:"id"`
	Label          string       `yaml:"label"`
	StartedAt      time.Time    `yaml:"started_at"`
	ClosedAt       *time.Time   `yaml:"closed_at,omitempty"`
	Closed         bool         `yaml:"closed"`
	Sources        []SourceMeta `yaml:"source_config"`
	RetentionHours int          `yaml:"retention_hours"`
	Frames         int          `yaml:"frames"`
	FirstSequence  uint64       `yaml:"first_sequence"`
	LastSequence   uint64       `yaml:"last_sequence"`
	LastGoodOffset int64        `yaml:"last_good_offset"`
	Interval       string       `yaml:"interval,omitempty"`
}

// SourceMeta identifies one collector active during the session. Params never
// carry credentials.
type SourceMeta struct {
	ID     string            `yaml:"id"`
	Kind   string            `yaml:"kind"`
	Params map[string]string `yaml:"params,omitempty"`
}

// RetentionHorizon returns the recorded retention window; 0 means unbounded.
func (m Meta) RetentionHorizon() time.Duration {
	if m.RetentionHours <= 0 {
		return 0
	}
	return time.Duration(m.RetentionHours) * time.Hour
}

// MetaPath returns the sidecar path for a log file.
func MetaPath(logPath string) string { return logPath + ".meta.yaml" }

// LockPath returns the writer lock path for a log file.
func LockPath(logPath string) string { return logPath + ".lock" }

// ReadMeta loads a sidecar.
func ReadMeta(path string) (*Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &m, nil
}

// WriteMeta replaces the sidecar atomically.
func WriteMeta(path string, m *Meta) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

var secretParams = []string{"*password*", "*passwd*", "*secret*", "*token*", "*key*", "*credential*"}

var kvPassword = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`)

// urlUserinfo spans from the scheme separator to the last '@' of a URL that
// url.Parse rejected.
var urlUserinfo = regexp.MustCompile(`(://)\S*@`)

const redacted = "xxxxx"

// ScrubParams renders collector params as strings with credentials removed.
// Keys matching a secret pattern are dropped; DSN and URL values keep their
// shape with the password masked.
func ScrubParams(params map[string]interface{}) map[string]string {
	if len(params) == 0 {
		return nil
	}
	pm, err := patternmatcher.New(secretParams)
	if err != nil {
		return nil
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if match, _ := pm.MatchesOrParentMatches(strings.ToLower(k)); match {
			continue
		}
		v := fmt.Sprint(params[k])
		out[k] = scrubCredentials(v)
	}
	return out
}

func scrubCredentials(v string) string {
	if strings.Contains(v, "://") {
		if u, err := url.Parse(v); err == nil {
			q := u.Query()
			for key := range q {
				if strings.Contains(strings.ToLower(key), "password") {
					q.Set(key, redacted)
				}
			}
			u.RawQuery = q.Encode()
			return u.Redacted()
		}
		v = urlUserinfo.ReplaceAllString(v, "${1}"+redacted+"@")
	}
	return kvPassword.ReplaceAllString(v, "${1}"+redacted)
}
