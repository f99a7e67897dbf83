package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/logging"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// DefaultMailbox is the per-subscriber buffer used when none is given.
const DefaultMailbox = 16

// Bus is the Snapshot bus. It is thread-safe. Delivery to each subscriber is
// independent: a full mailbox drops its oldest entry instead of blocking the
// producer.
type Bus struct {
	mu          sync.RWMutex
	current     *snapshot.Snapshot
	owner       *Publisher
	lastSeq     uint64
	hasLast     bool
	subscribers map[*Subscription]struct{}
	mailbox     int
	closed      bool
	logger      *logrus.Entry
}

// New creates a Bus whose subscribers get mailboxes of the given size.
func New(mailbox int) *Bus {
	if mailbox <= 0 {
		mailbox = DefaultMailbox
	}
	return &Bus{
		subscribers: make(map[*Subscription]struct{}),
		mailbox:     mailbox,
		logger:      logging.NewLogger("bus"),
	}
}

// Publisher is the exclusive right to emit Snapshots on a Bus.
type Publisher struct {
	bus      *Bus
	name     string
	released atomic.Bool
}

// Claim makes name the Bus's single producer. It fails while another
// publisher holds the claim.
func (b *Bus) Claim(name string) (*Publisher, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.owner != nil {
		return nil, errors.ProducerClaimed(b.owner.name, name)
	}
	p := &Publisher{bus: b, name: name}
	b.owner = p
	b.hasLast = false
	return p, nil
}

// Producer returns the name of the current producer, if any.
func (b *Bus) Producer() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.producerName()
}

func (b *Bus) producerName() string {
	if b.owner == nil {
		return ""
	}
	return b.owner.name
}

// Name returns the publisher's name.
func (p *Publisher) Name() string { return p.name }

// Publish emits a Snapshot in sequence order. A Snapshot whose sequence is
// lower than the last one published is dropped.
func (p *Publisher) Publish(s snapshot.Snapshot) {
	p.bus.deliver(p, s, false)
}

// Seek emits a Snapshot after explicit navigation; it may move backward.
func (p *Publisher) Seek(s snapshot.Snapshot) {
	p.bus.deliver(p, s, true)
}

// Release gives up the claim. Further publishes are ignored.
func (p *Publisher) Release() {
	if p.released.Swap(true) {
		return
	}
	b := p.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.owner == p {
		b.owner = nil
	}
}

func (b *Bus) deliver(p *Publisher, s snapshot.Snapshot, seek bool) {
	if p.released.Load() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.owner != p {
		return
	}
	if !seek && b.hasLast && s.Sequence < b.lastSeq {
		b.logger.WithField("sequence", s.Sequence).WithField("last", b.lastSeq).
			Warn("Dropping out-of-order snapshot")
		return
	}
	b.lastSeq = s.Sequence
	b.hasLast = true
	b.current = &s

	d := Delivery{Type: DeliverySnapshot, Snapshot: s, Seek: seek, Producer: p.name}
	for sub := range b.subscribers {
		sub.offer(d)
	}
}

// Notify broadcasts an operator-visible notice to every subscriber.
func (b *Bus) Notify(level NoticeLevel, source, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	n := &Notice{Level: level, Source: source, Message: message, At: time.Now().UTC()}
	d := Delivery{Type: DeliveryNotice, Notice: n, Producer: b.producerName()}
	for sub := range b.subscribers {
		sub.offer(d)
	}
}

// Current returns the most recently published Snapshot.
func (b *Bus) Current() (snapshot.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return snapshot.Snapshot{}, false
	}
	return *b.current, true
}

// Subscribe registers a consumer. When a Snapshot has already been published
// the mailbox starts with it.
func (b *Bus) Subscribe(name string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription{name: name, ch: make(chan Delivery, b.mailbox)}
	if b.closed {
		close(sub.ch)
		return sub
	}
	if b.current != nil {
		sub.offer(Delivery{Type: DeliverySnapshot, Snapshot: *b.current, Producer: b.producerName()})
	}
	b.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub.ch)
}

// Subscribers returns the number of registered consumers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscription. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = make(map[*Subscription]struct{})
}

// Subscription is one consumer's mailbox.
type Subscription struct {
	name    string
	ch      chan Delivery
	dropped atomic.Uint64
}

// C returns the delivery channel. It is closed on Unsubscribe or Bus.Close.
func (s *Subscription) C() <-chan Delivery { return s.ch }

// Name returns the subscriber name.
func (s *Subscription) Name() string { return s.name }

// Dropped returns how many deliveries were coalesced away.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// offer enqueues d. A full mailbox gives up its oldest Snapshot to make
// room; notices are only ever displaced by newer notices, when nothing but
// notices is queued. Callers hold the bus lock, so offers to one
// subscription never interleave and the consumer only frees space.
func (s *Subscription) offer(d Delivery) {
	select {
	case s.ch <- d:
		return
	default:
	}

	queued := make([]Delivery, 0, cap(s.ch)+1)
	for len(s.ch) > 0 {
		select {
		case q := <-s.ch:
			queued = append(queued, q)
		default:
		}
	}
	switch {
	case len(queued) < cap(s.ch):
		// The consumer caught up while we drained.
		queued = append(queued, d)
	case evictOldest(&queued, DeliverySnapshot):
		s.dropped.Add(1)
		queued = append(queued, d)
	case d.Type == DeliveryNotice:
		evictOldest(&queued, DeliveryNotice)
		s.dropped.Add(1)
		queued = append(queued, d)
	default:
		s.dropped.Add(1)
	}
	for _, q := range queued {
		s.ch <- q
	}
}

// evictOldest removes the first delivery of type t from queued.
func evictOldest(queued *[]Delivery, t DeliveryType) bool {
	for i, q := range *queued {
		if q.Type == t {
			*queued = append((*queued)[:i], (*queued)[i+1:]...)
			return true
		}
	}
	return false
}
