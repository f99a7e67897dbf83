package dashboard

import (
	"fmt"

	"github.com/grovetools/pgpulse/internal/daemon/engine"
	"github.com/grovetools/pgpulse/internal/replay"
)

// Controls carries operator commands back to whatever produces the
// Snapshots. Every method returns a short message for the status bar; an
// empty message means the command does not apply.
type Controls interface {
	Mode() string
	TogglePause() string
	Faster() string
	Slower() string
	Step(delta int) string
	Jump(toEnd bool) string
	ToggleRecording() string
	// Position describes where the producer is, e.g. "12/300" in a replay.
	Position() string
}

type liveControls struct {
	eng *engine.Engine
}

// LiveControls drives a live Engine.
func LiveControls(eng *engine.Engine) Controls { return liveControls{eng: eng} }

func (c liveControls) Mode() string { return "live" }

func (c liveControls) TogglePause() string {
	return "monitoring " + c.eng.TogglePause().String()
}

func (c liveControls) Faster() string {
	return "refresh interval " + c.eng.DecreaseInterval().String()
}

func (c liveControls) Slower() string {
	return "refresh interval " + c.eng.IncreaseInterval().String()
}

func (c liveControls) Step(int) string { return "" }

func (c liveControls) Jump(bool) string { return "" }

func (c liveControls) ToggleRecording() string {
	on, err := c.eng.ToggleRecording()
	switch {
	case err != nil:
		return fmt.Sprintf("recording failed: %v", err)
	case on:
		return "recording to " + c.eng.RecordingPath()
	default:
		return "recording stopped"
	}
}

func (c liveControls) Position() string {
	st := c.eng.Status()
	if st.Recording != "" {
		return "rec"
	}
	return ""
}

const (
	minSpeed = 0.25
	maxSpeed = 64
)

type replayControls struct {
	cur *replay.Cursor
}

// ReplayControls drives a replay Cursor.
func ReplayControls(cur *replay.Cursor) Controls { return replayControls{cur: cur} }

func (c replayControls) Mode() string { return "replay" }

func (c replayControls) TogglePause() string {
	playing, err := c.cur.Toggle()
	switch {
	case err != nil:
		return err.Error()
	case playing:
		return fmt.Sprintf("playing at %gx", c.cur.Speed())
	default:
		return "paused"
	}
}

func (c replayControls) setSpeed(speed float64) string {
	speed = min(max(speed, minSpeed), maxSpeed)
	if err := c.cur.SetSpeed(speed); err != nil {
		return err.Error()
	}
	if c.cur.Playing() {
		return fmt.Sprintf("playing at %gx", speed)
	}
	return fmt.Sprintf("speed %gx", speed)
}

func (c replayControls) Faster() string { return c.setSpeed(c.cur.Speed() * 2) }

func (c replayControls) Slower() string { return c.setSpeed(c.cur.Speed() / 2) }

func (c replayControls) Step(delta int) string {
	c.cur.Pause()
	if _, clamped := c.cur.Step(delta); clamped {
		if delta < 0 {
			return "start of recording"
		}
		return "end of recording"
	}
	return ""
}

func (c replayControls) Jump(toEnd bool) string {
	c.cur.Pause()
	if toEnd {
		c.cur.JumpToEnd()
		return "end of recording"
	}
	c.cur.JumpToStart()
	return "start of recording"
}

func (c replayControls) ToggleRecording() string { return "" }

func (c replayControls) Position() string {
	pos, total := c.cur.Position()
	return fmt.Sprintf("%d/%d", pos+1, total)
}

type viewOnly struct{ mode string }

// ViewOnly accepts no commands; used when attached to a remote session.
func ViewOnly(mode string) Controls { return viewOnly{mode: mode} }

func (v viewOnly) Mode() string            { return v.mode }
func (v viewOnly) TogglePause() string     { return "" }
func (v viewOnly) Faster() string          { return "" }
func (v viewOnly) Slower() string          { return "" }
func (v viewOnly) Step(int) string         { return "" }
func (v viewOnly) Jump(bool) string        { return "" }
func (v viewOnly) ToggleRecording() string { return "" }
func (v viewOnly) Position() string        { return "" }
