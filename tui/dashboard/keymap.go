package dashboard

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the dashboard's key bindings.
type KeyMap struct {
	Pause   key.Binding
	Faster  key.Binding
	Slower  key.Binding
	Back    key.Binding
	Forward key.Binding
	Start   key.Binding
	End     key.Binding
	Record  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap provides the default key bindings.
var DefaultKeyMap = KeyMap{
	Pause: key.NewBinding(
		key.WithKeys("p", " "),
		key.WithHelp("p", "pause/resume"),
	),
	Faster: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "faster"),
	),
	Slower: key.NewBinding(
		key.WithKeys("-", "_"),
		key.WithHelp("-", "slower"),
	),
	Back: key.NewBinding(
		key.WithKeys("[", "left"),
		key.WithHelp("[", "step back"),
	),
	Forward: key.NewBinding(
		key.WithKeys("]", "right"),
		key.WithHelp("]", "step forward"),
	),
	Start: key.NewBinding(
		key.WithKeys("home", "g"),
		key.WithHelp("g", "first"),
	),
	End: key.NewBinding(
		key.WithKeys("end", "G"),
		key.WithHelp("G", "last"),
	),
	Record: key.NewBinding(
		key.WithKeys("W"),
		key.WithHelp("W", "toggle recording"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp returns keybindings to be shown in the compact help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Faster, k.Slower, k.Help, k.Quit}
}

// FullHelp returns keybindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.Faster, k.Slower, k.Record},
		{k.Back, k.Forward, k.Start, k.End},
		{k.Help, k.Quit},
	}
}

// Reference lists the bindings that apply in live or replay mode as
// "key<TAB>action" lines, for command help pages.
func (k KeyMap) Reference(replay bool) string {
	bindings := []key.Binding{k.Pause, k.Faster, k.Slower, k.Record}
	if replay {
		bindings = []key.Binding{k.Pause, k.Faster, k.Slower, k.Back, k.Forward, k.Start, k.End}
	}
	bindings = append(bindings, k.Help, k.Quit)

	lines := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		lines = append(lines, h.Key+"\t"+h.Desc)
	}
	return strings.Join(lines, "\n")
}
