package daemon

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/pgpulse/internal/daemon/bus"
	"github.com/grovetools/pgpulse/logging"
)

const (
	minBackoff = 250 * time.Millisecond
	maxBackoff = 10 * time.Second
)

// Feed republishes a remote session's stream on a local Bus, so a local
// dashboard can render it like a live session. It reconnects with backoff
// until its context ends.
type Feed struct {
	client Client
	bus    *bus.Bus
	pub    *bus.Publisher
	logger *logrus.Entry
}

// NewFeed claims b for the remote producer.
func NewFeed(client Client, b *bus.Bus, name string) (*Feed, error) {
	pub, err := b.Claim("remote:" + name)
	if err != nil {
		return nil, err
	}
	return &Feed{
		client: client,
		bus:    b,
		pub:    pub,
		logger: logging.NewLogger("feed").WithField("remote", name),
	}, nil
}

// Run streams until ctx is cancelled, then releases the Bus.
func (f *Feed) Run(ctx context.Context) {
	defer f.pub.Release()

	backoff := minBackoff
	connected := true
	for ctx.Err() == nil {
		stream, err := f.client.Stream(ctx)
		if err != nil {
			if connected {
				f.logger.WithError(err).Warn("Remote stream unavailable")
				f.bus.Notify(bus.NoticeWarning, "feed", "remote stream unavailable, retrying")
				connected = false
			}
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		if !connected {
			f.bus.Notify(bus.NoticeInfo, "feed", "remote stream reconnected")
		}
		connected = true
		backoff = minBackoff
		f.forward(stream)
		if !sleep(ctx, minBackoff) {
			return
		}
	}
}

// forward copies one connection's deliveries. The first Snapshot is published
// as a seek since the remote may have restarted its sequence.
func (f *Feed) forward(stream <-chan bus.Delivery) {
	first := true
	for d := range stream {
		switch d.Type {
		case bus.DeliverySnapshot:
			if first || d.Seek {
				f.pub.Seek(d.Snapshot)
			} else {
				f.pub.Publish(d.Snapshot)
			}
			first = false
		case bus.DeliveryNotice:
			if d.Notice != nil {
				f.bus.Notify(d.Notice.Level, d.Notice.Source, d.Notice.Message)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
