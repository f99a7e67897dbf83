package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/pgpulse/logging"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// State is the Scheduler's lifecycle state.
type State int

const (
	StateRunning State = iota
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// TickSource produces one Snapshot for a tick that began at tickStart.
type TickSource interface {
	Compose(ctx context.Context, tickStart time.Time) snapshot.Snapshot
}

// Sink receives every Snapshot after it is composed. Sinks run on the tick
// path and must not block.
type Sink func(snapshot.Snapshot)

// Scheduler owns the tick cadence. Ticks are strictly serialised: the next
// tick is never started while a composition is running. After an overrun it
// skips to the next slot boundary of the original cadence.
type Scheduler struct {
	source TickSource
	now    func() time.Time
	logger *logrus.Entry

	mu        sync.Mutex
	state     State
	interval  time.Duration
	nextFire  time.Time
	lastStart time.Time
	sinks     map[string]Sink
	ticks     uint64
	overruns  uint64
	// resumes counts Resume calls so a tick that was in flight across a
	// resume leaves the fire time Resume chose alone.
	resumes uint64

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// NewScheduler returns a Scheduler in the running state. The first tick fires
// as soon as Run is called.
func NewScheduler(source TickSource, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		source:   source,
		now:      time.Now,
		logger:   logging.NewLogger("scheduler"),
		state:    StateRunning,
		interval: interval,
		sinks:    make(map[string]Sink),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// AddSink registers fn under name, replacing any sink with that name.
func (s *Scheduler) AddSink(name string, fn Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks[name] = fn
}

// RemoveSink unregisters the named sink.
func (s *Scheduler) RemoveSink(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sinks, name)
}

// HasSink reports whether a sink is registered under name.
func (s *Scheduler) HasSink(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sinks[name]
	return ok
}

// Run drives ticks until ctx is cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	s.mu.Lock()
	if s.state == StateRunning && s.nextFire.IsZero() {
		s.nextFire = s.now()
	}
	s.mu.Unlock()

	for {
		s.mu.Lock()
		state := s.state
		next := s.nextFire
		s.mu.Unlock()

		if state == StateStopped {
			return
		}

		var timer *time.Timer
		var fire <-chan time.Time
		if state == StateRunning {
			timer = time.NewTimer(next.Sub(s.now()))
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.setStopped()
			return
		case <-s.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-fire:
			s.tick(ctx)
		}
	}
}

// Done is closed when Run returns.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	resumes := s.resumes
	s.mu.Unlock()

	start := s.now()
	snap := s.source.Compose(ctx, start)

	s.mu.Lock()
	sinks := make([]string, 0, len(s.sinks))
	for name := range s.sinks {
		sinks = append(sinks, name)
	}
	sort.Strings(sinks)
	fns := make([]Sink, 0, len(sinks))
	for _, name := range sinks {
		fns = append(fns, s.sinks[name])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
	s.lastStart = start
	if s.state != StateRunning || s.resumes != resumes {
		return
	}
	end := s.now()
	next := start.Add(s.interval)
	if !next.After(end) {
		// Skip missed slots; never burst.
		missed := end.Sub(start)/s.interval + 1
		next = start.Add(missed * s.interval)
		s.overruns++
		s.logger.WithField("sequence", snap.Sequence).
			WithField("elapsed", end.Sub(start)).
			Debug("Tick overran its interval")
	}
	s.nextFire = next
}

// Pause suppresses ticks until Resume.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	if s.state == StateRunning {
		s.state = StatePaused
	}
	s.mu.Unlock()
	s.signal()
}

// Resume restarts ticking; the next tick fires one full interval from now.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	if s.state == StatePaused {
		s.state = StateRunning
		s.resumes++
		s.nextFire = s.now().Add(s.interval)
	}
	s.mu.Unlock()
	s.signal()
}

// Toggle switches between running and paused and returns the new state.
func (s *Scheduler) Toggle() State {
	switch s.State() {
	case StateRunning:
		s.Pause()
	case StatePaused:
		s.Resume()
	}
	return s.State()
}

// SetInterval changes the cadence. The pending fire is re-armed to the last
// tick start plus the new interval, or now if that has already passed.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = d
	if s.state == StateRunning && !s.lastStart.IsZero() {
		next := s.lastStart.Add(d)
		if now := s.now(); next.Before(now) {
			next = now
		}
		s.nextFire = next
	}
	s.mu.Unlock()
	s.signal()
}

// Interval returns the current cadence.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns the number of completed ticks and overruns.
func (s *Scheduler) Stats() (ticks, overruns uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks, s.overruns
}

// Stop moves the Scheduler to the terminal stopped state.
func (s *Scheduler) Stop() {
	s.setStopped()
	s.signal()
}

func (s *Scheduler) setStopped() {
	s.once.Do(func() {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
	})
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
