package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/internal/daemon/collector"
	"github.com/grovetools/pgpulse/logging"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// ComposerOptions configures a Composer.
type ComposerOptions struct {
	// Deadline bounds every tick's composition.
	Deadline time.Duration
	// Timeouts holds per-source fetch timeouts. Missing or larger values are
	// clamped to Deadline.
	Timeouts map[snapshot.SourceID]time.Duration
	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Composer fans out to every collector once per tick and merges the results
// into one Snapshot. It never fails a tick: sources that error or miss the
// deadline reuse their previous reading as stale, or are unavailable.
type Composer struct {
	collectors []collector.Collector
	timeouts   map[snapshot.SourceID]time.Duration
	now        func() time.Time
	logger     *logrus.Entry

	mu       sync.Mutex
	deadline time.Duration
	seq      uint64
	start    time.Time
	lastTick time.Time
	prev     *snapshot.Snapshot
	disabled map[snapshot.SourceID]string
	failing  map[snapshot.SourceID]bool
}

type fetchResult struct {
	id      snapshot.SourceID
	reading snapshot.SourceReading
	err     error
}

// NewComposer returns a Composer for a new session; the first Snapshot has
// sequence 0.
func NewComposer(collectors []collector.Collector, opts ComposerOptions) *Composer {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = time.Second
	}
	timeouts := make(map[snapshot.SourceID]time.Duration, len(opts.Timeouts))
	for id, d := range opts.Timeouts {
		timeouts[id] = d
	}
	return &Composer{
		collectors: collectors,
		timeouts:   timeouts,
		now:        now,
		logger:     logging.NewLogger("composer"),
		deadline:   deadline,
		disabled:   make(map[snapshot.SourceID]string),
		failing:    make(map[snapshot.SourceID]bool),
	}
}

// SetDeadline changes the tick deadline from the next composition on.
// Non-positive values are ignored.
func (c *Composer) SetDeadline(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = d
}

// Deadline returns the current tick deadline.
func (c *Composer) Deadline() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

// Disabled returns sources disabled by a terminal fetch error, with the reason.
func (c *Composer) Disabled() map[snapshot.SourceID]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[snapshot.SourceID]string, len(c.disabled))
	for id, reason := range c.disabled {
		out[id] = reason
	}
	return out
}

// Health returns the health of every collector.
func (c *Composer) Health() []collector.Health {
	out := make([]collector.Health, 0, len(c.collectors))
	for _, col := range c.collectors {
		out = append(out, col.Health())
	}
	return out
}

// Previous returns the last composed Snapshot.
func (c *Composer) Previous() (snapshot.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prev == nil {
		return snapshot.Snapshot{}, false
	}
	return *c.prev, true
}

// Compose produces the Snapshot for the tick that began at tickStart.
// Calls must not overlap; the Scheduler serialises them.
func (c *Composer) Compose(ctx context.Context, tickStart time.Time) snapshot.Snapshot {
	c.mu.Lock()
	deadline := c.deadline
	prev := c.prev
	if c.start.IsZero() {
		c.start = tickStart
	}
	disabled := make(map[snapshot.SourceID]string, len(c.disabled))
	for id, reason := range c.disabled {
		disabled[id] = reason
	}
	c.mu.Unlock()

	results := c.gather(ctx, deadline, disabled)

	sources := make(map[snapshot.SourceID]snapshot.SourceReading, len(c.collectors))
	for _, col := range c.collectors {
		id := col.Identify()
		res, ok := results[id]
		switch {
		case ok && res.err == nil:
			sources[id] = res.reading
			c.noteRecovered(id)
		case ok && errors.Is(res.err, errors.ErrCodeFetchTerminal):
			sources[id] = unavailable(fmt.Sprintf("disabled: %s", res.err))
			c.noteFailure(id, res.err)
		case ok:
			sources[id] = degrade(prev, id, res.err.Error())
			c.noteFailure(id, res.err)
		default:
			sources[id] = unavailable(fmt.Sprintf("disabled: %s", disabled[id]))
		}
	}

	end := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	snap := snapshot.Snapshot{
		Sequence: c.seq,
		CapturedAt: snapshot.LogicalTime{
			Wall: tickStart.UTC(),
			Mono: tickStart.Sub(c.start),
		},
		Sources: sources,
		Elapsed: end.Sub(tickStart),
	}
	if !c.lastTick.IsZero() {
		snap.Interval = tickStart.Sub(c.lastTick)
	}
	c.seq++
	c.lastTick = tickStart
	c.prev = &snap

	if snap.AllUnavailable() && len(sources) > 0 {
		c.logger.WithField("sequence", snap.Sequence).Debug("No source produced data this tick")
	}
	return snap
}

// gather fetches from every enabled collector concurrently and returns the
// results that arrived before the latest per-source timeout. Sources that did
// not answer in time carry a COMPOSITION_DEADLINE error.
func (c *Composer) gather(ctx context.Context, deadline time.Duration, disabled map[snapshot.SourceID]string) map[snapshot.SourceID]fetchResult {
	active := make([]collector.Collector, 0, len(c.collectors))
	for _, col := range c.collectors {
		if _, off := disabled[col.Identify()]; !off {
			active = append(active, col)
		}
	}
	out := make(map[snapshot.SourceID]fetchResult, len(active))
	if len(active) == 0 {
		return out
	}

	// Buffered so late fetches never block after the composer stops waiting.
	results := make(chan fetchResult, len(active))
	var wait time.Duration
	for _, col := range active {
		timeout := c.sourceTimeout(col.Identify(), deadline)
		if timeout > wait {
			wait = timeout
		}
		go func(col collector.Collector, timeout time.Duration) {
			fctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			reading, err := col.Fetch(fctx)
			results <- fetchResult{id: col.Identify(), reading: reading, err: err}
		}(col, timeout)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for len(out) < len(active) {
		select {
		case res := <-results:
			out[res.id] = res
		case <-timer.C:
			c.markMissing(active, out, wait)
			return out
		case <-ctx.Done():
			c.markMissing(active, out, wait)
			return out
		}
	}
	return out
}

func (c *Composer) markMissing(active []collector.Collector, out map[snapshot.SourceID]fetchResult, wait time.Duration) {
	for _, col := range active {
		id := col.Identify()
		if _, ok := out[id]; !ok {
			out[id] = fetchResult{id: id, err: errors.CompositionDeadline(string(id), wait)}
		}
	}
}

func (c *Composer) sourceTimeout(id snapshot.SourceID, deadline time.Duration) time.Duration {
	timeout, ok := c.timeouts[id]
	if !ok || timeout <= 0 || timeout > deadline {
		return deadline
	}
	return timeout
}

func (c *Composer) noteFailure(id snapshot.SourceID, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.logger.WithField("source", id).WithError(err)
	if errors.Is(err, errors.ErrCodeFetchTerminal) {
		c.disabled[id] = err.Error()
		log.Warn("Source disabled for this session")
		return
	}
	if !c.failing[id] {
		c.failing[id] = true
		log.Warn("Source fetch failed, showing stale data")
		return
	}
	log.Debug("Source fetch still failing")
}

func (c *Composer) noteRecovered(id snapshot.SourceID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing[id] {
		delete(c.failing, id)
		c.logger.WithField("source", id).Info("Source recovered")
	}
}

// degrade builds the reading for a source whose fetch failed this tick. The
// previous reading's fields are reused unchanged with status stale and the
// original fetch time; without one the source is unavailable.
func degrade(prev *snapshot.Snapshot, id snapshot.SourceID, reason string) snapshot.SourceReading {
	if prev != nil {
		if last, ok := prev.Sources[id]; ok && last.Status != snapshot.StatusUnavailable {
			return snapshot.SourceReading{
				Status:    snapshot.StatusStale,
				Fields:    last.Fields,
				FetchedAt: last.FetchedAt,
				Error:     reason,
			}
		}
	}
	return unavailable(reason)
}

func unavailable(reason string) snapshot.SourceReading {
	return snapshot.SourceReading{
		Status: snapshot.StatusUnavailable,
		Fields: map[string]snapshot.Value{},
		Error:  reason,
	}
}
