// Package collector provides the per-backend source collectors polled by the
// composer once per tick.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// Collector fetches the current state of one monitored backend.
//
// Fetch must honour ctx: when the deadline passes it abandons in-flight work
// and returns promptly. Implementations may cache capability checks but never
// data values. A failed Fetch returns a FETCH_TRANSIENT or FETCH_TERMINAL error.
type Collector interface {
	// Identify returns the stable source key.
	Identify() snapshot.SourceID

	// Fetch returns a fresh reading with status ok or degraded.
	Fetch(ctx context.Context) (snapshot.SourceReading, error)

	// Health reports the collector's recent fetch outcomes.
	Health() Health
}

// HealthState summarises a collector's condition.
type HealthState string

const (
	HealthUnknown  HealthState = "unknown"
	HealthOK       HealthState = "ok"
	HealthFailing  HealthState = "failing"
	HealthDisabled HealthState = "disabled"
)

// Health describes recent fetch outcomes for one collector.
type Health struct {
	Source              snapshot.SourceID `json:"source"`
	State               HealthState       `json:"state"`
	LastSuccess         time.Time         `json:"last_success,omitempty"`
	LastError           string            `json:"last_error,omitempty"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
}

// healthTracker records fetch outcomes. Each collector owns its own tracker.
type healthTracker struct {
	mu     sync.Mutex
	health Health
}

func newHealthTracker(id snapshot.SourceID) *healthTracker {
	return &healthTracker{health: Health{Source: id, State: HealthUnknown}}
}

func (t *healthTracker) success(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.health.State = HealthOK
	t.health.LastSuccess = at
	t.health.LastError = ""
	t.health.ConsecutiveFailures = 0
}

// failure records err. Terminal errors move the collector to disabled for good.
func (t *healthTracker) failure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.health.ConsecutiveFailures++
	if err != nil {
		t.health.LastError = err.Error()
	}
	if t.health.State == HealthDisabled {
		return
	}
	if errors.Is(err, errors.ErrCodeFetchTerminal) {
		t.health.State = HealthDisabled
	} else {
		t.health.State = HealthFailing
	}
}

func (t *healthTracker) get() Health {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.health
}

// newReading returns an ok reading stamped at now.
func newReading(now time.Time) snapshot.SourceReading {
	return snapshot.SourceReading{
		Status:    snapshot.StatusOK,
		Fields:    make(map[string]snapshot.Value),
		FetchedAt: now.UTC().Round(0),
	}
}

// fetchGate admits one fetch at a time. Waiting honours the caller's context.
type fetchGate chan struct{}

func newFetchGate() fetchGate { return make(fetchGate, 1) }

func (g fetchGate) enter(ctx context.Context) error {
	select {
	case g <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g fetchGate) leave() { <-g }
