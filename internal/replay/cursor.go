package replay

import (
	"fmt"
	"sync"
	"time"

	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/internal/daemon/bus"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// Cursor is one independent read position over a Log. Navigation calls are
// synchronous and safe for concurrent use; separate cursors never interfere.
type Cursor struct {
	log *Log

	mu      sync.Mutex
	pos     int
	current snapshot.Snapshot
	pub     *bus.Publisher

	playing bool
	speed   float64
	gen     uint64
	stop    chan struct{}
	err     error
}

// NewCursor returns a cursor positioned at the first Snapshot.
func (l *Log) NewCursor() (*Cursor, error) {
	s, err := l.read(0)
	if err != nil {
		return nil, err
	}
	return &Cursor{log: l, current: s, speed: 1}, nil
}

// Attach publishes the cursor's position on a Bus from now on. The current
// Snapshot is published immediately as a seek.
func (c *Cursor) Attach(pub *bus.Publisher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pub = pub
	if pub != nil {
		pub.Seek(c.current)
	}
}

// Current returns the Snapshot at the cursor.
func (c *Cursor) Current() snapshot.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Position returns the cursor's index and the number of readable Snapshots.
func (c *Cursor) Position() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos, c.log.Len()
}

// Step moves by delta Snapshots. Moves past either end clamp to it; clamped
// reports whether that happened.
func (c *Cursor) Step(delta int) (s snapshot.Snapshot, clamped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := c.pos + delta
	target, clamped = c.clamp(target)
	c.moveLocked(target)
	return c.current, clamped
}

// SeekSequence moves to the Snapshot with sequence seq. Values outside the
// recorded range clamp to the first or last Snapshot.
func (c *Cursor) SeekSequence(seq int64) snapshot.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := 0
	if seq > 0 {
		target = c.log.indexOfSequence(uint64(seq))
	}
	c.moveLocked(target)
	return c.current
}

// SeekTime moves to the first Snapshot captured at or after t, clamped to the
// recording's span.
func (c *Cursor) SeekTime(t time.Time) snapshot.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moveLocked(c.log.indexOfTime(t))
	return c.current
}

// JumpToStart moves to the first Snapshot.
func (c *Cursor) JumpToStart() snapshot.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moveLocked(0)
	return c.current
}

// JumpToEnd moves to the last Snapshot.
func (c *Cursor) JumpToEnd() snapshot.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moveLocked(c.log.Len() - 1)
	return c.current
}

// Play advances through the log with the recorded capture-time deltas divided
// by speed. Calling Play while playing changes the speed. Playback pauses by
// itself at the last Snapshot.
func (c *Cursor) Play(speed float64) error {
	if speed <= 0 {
		return errors.InvalidNavigation(fmt.Sprintf("play speed must be positive, got %g", speed))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = speed
	if c.playing {
		// Restart the wait so the new speed applies to the pending step.
		c.stopLocked()
	}
	if c.pos >= c.log.Len()-1 {
		return nil
	}
	c.playing = true
	c.err = nil
	c.gen++
	c.stop = make(chan struct{})
	go c.playLoop(c.gen, c.stop)
	return nil
}

// SetSpeed changes the playback speed. A running playback picks it up at once;
// a paused cursor keeps it for the next Play.
func (c *Cursor) SetSpeed(speed float64) error {
	if speed <= 0 {
		return errors.InvalidNavigation(fmt.Sprintf("play speed must be positive, got %g", speed))
	}
	if c.Playing() {
		return c.Play(speed)
	}
	c.mu.Lock()
	c.speed = speed
	c.mu.Unlock()
	return nil
}

// Pause stops playback. It is a no-op when not playing.
func (c *Cursor) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Toggle switches between play and pause at the current speed.
func (c *Cursor) Toggle() (bool, error) {
	if c.Playing() {
		c.Pause()
		return false, nil
	}
	c.mu.Lock()
	speed := c.speed
	c.mu.Unlock()
	if err := c.Play(speed); err != nil {
		return false, err
	}
	return c.Playing(), nil
}

// Playing reports whether playback is running.
func (c *Cursor) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Err returns the read failure that last stopped playback, if any.
func (c *Cursor) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Speed returns the playback speed multiplier.
func (c *Cursor) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

func (c *Cursor) stopLocked() {
	if !c.playing {
		return
	}
	c.playing = false
	c.gen++
	close(c.stop)
}

func (c *Cursor) playLoop(gen uint64, stop <-chan struct{}) {
	for {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		if c.pos >= c.log.Len()-1 {
			c.playing = false
			c.gen++
			c.mu.Unlock()
			return
		}
		wait := c.delayLocked()
		c.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		if c.gen == gen {
			if err := c.moveLocked(c.pos + 1); err != nil {
				c.err = err
				c.stopLocked()
				c.mu.Unlock()
				return
			}
		}
		c.mu.Unlock()
	}
}

// delayLocked is the scaled monotonic delta to the next Snapshot. Wall
// clock steps during recording do not affect playback.
func (c *Cursor) delayLocked() time.Duration {
	delta := c.log.frame(c.pos+1).Mono - c.log.frame(c.pos).Mono
	if delta <= 0 {
		return 0
	}
	return time.Duration(float64(delta) / c.speed)
}

func (c *Cursor) clamp(target int) (int, bool) {
	switch last := c.log.Len() - 1; {
	case target < 0:
		return 0, true
	case target > last:
		return last, true
	default:
		return target, false
	}
}

// moveLocked reads the Snapshot at target and publishes it. Backward moves
// go out as seeks, the only kind the Bus lets move backward. A frame that
// cannot be read leaves the cursor where it was.
func (c *Cursor) moveLocked(target int) error {
	target, _ = c.clamp(target)
	backward := target < c.pos
	if target != c.pos {
		s, err := c.log.read(target)
		if err != nil {
			c.log.logger.WithError(err).WithField("index", target).Warn("Failed to read frame")
			return err
		}
		c.pos = target
		c.current = s
	}
	if c.pub == nil {
		return nil
	}
	if backward {
		c.pub.Seek(c.current)
	} else {
		c.pub.Publish(c.current)
	}
	return nil
}
