package dashboard

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/grovetools/pgpulse/internal/daemon/bus"
)

// Update handles messages and updates the model accordingly.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case deliveryMsg:
		m.apply(bus.Delivery(msg))
		return m, waitForDelivery(m.sub)

	case streamEndedMsg:
		m.ended = true
		m.status = "stream ended"
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) apply(d bus.Delivery) {
	switch d.Type {
	case bus.DeliverySnapshot:
		// Rates need two consecutive ticks; a seek breaks the chain.
		if m.have && !d.Seek && d.Snapshot.Sequence == m.current.Sequence+1 {
			prev := m.current
			m.prev = &prev
		} else {
			m.prev = nil
		}
		m.current = d.Snapshot
		m.have = true
	case bus.DeliveryNotice:
		if d.Notice == nil {
			return
		}
		m.notices = append(m.notices, *d.Notice)
		if len(m.notices) > maxNotices {
			m.notices = m.notices[len(m.notices)-maxNotices:]
		}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var status string
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Pause):
		status = m.controls.TogglePause()
	case key.Matches(msg, m.keys.Faster):
		status = m.controls.Faster()
	case key.Matches(msg, m.keys.Slower):
		status = m.controls.Slower()
	case key.Matches(msg, m.keys.Back):
		status = m.controls.Step(-1)
	case key.Matches(msg, m.keys.Forward):
		status = m.controls.Step(+1)
	case key.Matches(msg, m.keys.Start):
		status = m.controls.Jump(false)
	case key.Matches(msg, m.keys.End):
		status = m.controls.Jump(true)
	case key.Matches(msg, m.keys.Record):
		status = m.controls.ToggleRecording()
	default:
		return m, nil
	}
	if status != "" {
		m.status = status
	}
	return m, nil
}
