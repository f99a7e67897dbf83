package recorder

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/pgpulse/internal/sessionlog"
	"github.com/grovetools/pgpulse/logging"
)

// Pruner deletes closed session logs older than the retention horizon.
// Logs still locked by a live writer, and the active session, are never
// touched.
type Pruner struct {
	dir     string
	horizon time.Duration
	active  func() string
	now     func() time.Time
	logger  *logrus.Entry
}

// NewPruner returns a pruner for dir. A non-positive horizon disables pruning.
func NewPruner(dir string, horizon time.Duration) *Pruner {
	return &Pruner{
		dir:     dir,
		horizon: horizon,
		active:  func() string { return "" },
		now:     time.Now,
		logger:  logging.NewLogger("pruner"),
	}
}

// WithActive sets a function returning the path of the session being
// recorded, which is always skipped.
func (p *Pruner) WithActive(active func() string) *Pruner {
	if active != nil {
		p.active = active
	}
	return p
}

// Horizon returns the retention horizon.
func (p *Pruner) Horizon() time.Duration { return p.horizon }

// Expired returns the sessions a prune pass would remove now.
func (p *Pruner) Expired() ([]sessionlog.Info, error) {
	if p.horizon <= 0 {
		return nil, nil
	}
	infos, err := sessionlog.List(p.dir)
	if err != nil {
		return nil, err
	}

	cutoff := p.now().Add(-p.horizon)
	active := p.active()
	var expired []sessionlog.Info
	for _, info := range infos {
		if info.Active || info.Path == active {
			continue
		}
		if info.LastActivity().Before(cutoff) {
			expired = append(expired, info)
		}
	}
	return expired, nil
}

// PruneOnce removes every expired session and returns the removed paths.
func (p *Pruner) PruneOnce() ([]string, error) {
	expired, err := p.Expired()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, info := range expired {
		if err := sessionlog.Remove(info.Path); err != nil {
			p.logger.WithError(err).WithField("path", info.Path).Warn("Failed to prune session")
			continue
		}
		removed = append(removed, info.Path)
	}
	if len(removed) > 0 {
		p.logger.WithField("count", len(removed)).Info("Pruned expired sessions")
	}
	return removed, nil
}

// Run prunes immediately and then every interval until ctx is cancelled.
// It runs on its own goroutine and never touches the tick path.
func (p *Pruner) Run(ctx context.Context, interval time.Duration) {
	if p.horizon <= 0 {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if _, err := p.PruneOnce(); err != nil {
		p.logger.WithError(err).Warn("Retention pass failed")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PruneOnce(); err != nil {
				p.logger.WithError(err).Warn("Retention pass failed")
			}
		}
	}
}
