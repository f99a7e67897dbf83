// Package dashboard is a bubbletea presentation consumer of the Snapshot Bus.
// It renders whatever the Bus delivers, live or replayed, and sends operator
// commands through Controls.
package dashboard

import (
	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/grovetools/pgpulse/internal/daemon/bus"
	"github.com/grovetools/pgpulse/pkg/snapshot"
	"github.com/grovetools/pgpulse/tui/theme"
)

const maxNotices = 3

// Model is the dashboard state.
type Model struct {
	title    string
	sub      *bus.Subscription
	controls Controls
	keys     KeyMap
	help     help.Model
	theme    *theme.Theme

	current snapshot.Snapshot
	prev    *snapshot.Snapshot
	have    bool
	notices []bus.Notice
	status  string
	ended   bool

	width  int
	height int
}

// New creates a dashboard reading from sub.
func New(title string, sub *bus.Subscription, controls Controls) Model {
	if controls == nil {
		controls = ViewOnly("view")
	}
	return Model{
		title:    title,
		sub:      sub,
		controls: controls,
		keys:     DefaultKeyMap,
		help:     help.New(),
		theme:    theme.DefaultTheme,
	}
}

// deliveryMsg carries one Bus delivery into the update loop.
type deliveryMsg bus.Delivery

// streamEndedMsg reports that the subscription was closed.
type streamEndedMsg struct{}

// Init starts listening on the subscription.
func (m Model) Init() tea.Cmd {
	return waitForDelivery(m.sub)
}

func waitForDelivery(sub *bus.Subscription) tea.Cmd {
	return func() tea.Msg {
		d, ok := <-sub.C()
		if !ok {
			return streamEndedMsg{}
		}
		return deliveryMsg(d)
	}
}

// Current returns the Snapshot on screen and whether one has arrived.
func (m Model) Current() (snapshot.Snapshot, bool) {
	return m.current, m.have
}
