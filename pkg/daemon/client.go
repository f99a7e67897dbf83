// Package daemon provides the client side of a pgpulse viewer endpoint and
// the config-file watcher used by long-running sessions.
package daemon

import (
	"context"

	"github.com/grovetools/pgpulse/internal/daemon/bus"
	"github.com/grovetools/pgpulse/internal/daemon/engine"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// Client talks to a running pgpulse session.
type Client interface {
	// Status returns the session's scheduler, recorder and source health.
	Status(ctx context.Context) (*engine.Status, error)

	// Snapshot returns the most recent Snapshot. ok is false before the first tick.
	Snapshot(ctx context.Context) (s snapshot.Snapshot, ok bool, err error)

	// Stream subscribes to the session's Bus deliveries. The channel is closed
	// when ctx is cancelled or the connection is lost.
	Stream(ctx context.Context) (<-chan bus.Delivery, error)

	// IsRunning returns true if the endpoint is available and responding.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}
