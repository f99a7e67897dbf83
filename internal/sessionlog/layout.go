package sessionlog

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/grovetools/pgpulse/internal/daemon/pidfile"
)

const (
	maxLabelHost = 30
	defaultPort  = 5432
	stampLayout  = "20060102_150405"
)

// Label derives the recording subdirectory for a host: dots become
// underscores, the host is cut to 30 characters, and a non-default port is
// appended.
func Label(host string, port int) string {
	h := strings.ReplaceAll(host, ".", "_")
	h = strings.ReplaceAll(h, string(filepath.Separator), "_")
	if len(h) > maxLabelHost {
		h = h[:maxLabelHost]
	}
	if h == "" {
		h = "local"
	}
	if port != 0 && port != defaultPort {
		h += "_" + strconv.Itoa(port)
	}
	return h
}

// LabelFromDSN derives the label from a PostgreSQL connection string.
// Unix-socket hosts collapse to "local".
func LabelFromDSN(dsn string) (string, error) {
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return "", err
	}
	host := cfg.Host
	if strings.HasPrefix(host, "/") {
		host = ""
	}
	return Label(host, int(cfg.Port)), nil
}

// FileName returns the log file name for a session started at t.
func FileName(t time.Time) string {
	return t.UTC().Format(stampLayout) + Extension
}

// Info describes one session log on disk.
type Info struct {
	Path    string
	Label   string
	Size    int64
	ModTime time.Time
	// Meta is nil when the sidecar is missing or unreadable.
	Meta *Meta
	// Active is true while the writer process still holds the lock.
	Active bool
}

// LastActivity is the close time when known, otherwise the file mtime.
func (i Info) LastActivity() time.Time {
	if i.Meta != nil && i.Meta.ClosedAt != nil {
		return *i.Meta.ClosedAt
	}
	return i.ModTime
}

// Span is the recorded wall-clock span, or 0 when unknown.
func (i Info) Span() time.Duration {
	if i.Meta == nil || i.Meta.StartedAt.IsZero() {
		return 0
	}
	return i.LastActivity().Sub(i.Meta.StartedAt)
}

// List returns every session log under dir (<dir>/<label>/*.pgsl), oldest first.
func List(dir string) ([]Info, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*", "*"+Extension))
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(matches))
	for _, path := range matches {
		st, err := os.Stat(path)
		if err != nil || st.IsDir() {
			continue
		}
		info := Info{
			Path:    path,
			Label:   filepath.Base(filepath.Dir(path)),
			Size:    st.Size(),
			ModTime: st.ModTime(),
		}
		if m, err := ReadMeta(MetaPath(path)); err == nil {
			info.Meta = m
		}
		if running, _, err := pidfile.IsRunning(LockPath(path)); err == nil {
			info.Active = running
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(a, b int) bool {
		if infos[a].ModTime.Equal(infos[b].ModTime) {
			return infos[a].Path < infos[b].Path
		}
		return infos[a].ModTime.Before(infos[b].ModTime)
	})
	return infos, nil
}

// Remove deletes a log together with its sidecar and lock.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, extra := range []string{MetaPath(path), LockPath(path)} {
		if err := os.Remove(extra); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	// Drop the label directory once it is empty.
	_ = os.Remove(filepath.Dir(path))
	return nil
}
