package cmd

import (
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/grovetools/pgpulse/internal/daemon/bus"
	"github.com/grovetools/pgpulse/logging"
	"github.com/grovetools/pgpulse/tui"
	"github.com/grovetools/pgpulse/tui/dashboard"
)

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// runDashboard shows sub until the operator quits. Structured logs are kept
// off the terminal while the alternate screen is up.
func runDashboard(title string, sub *bus.Subscription, controls dashboard.Controls) error {
	tui.InitializeTUI()
	defer logging.RedirectGlobalOutput(io.Discard)()

	p := tea.NewProgram(dashboard.New(title, sub, controls), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
