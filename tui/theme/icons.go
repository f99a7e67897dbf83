package theme

import "os"

// Icon set used for source status badges. Nerd Font glyphs are used only when
// PGPULSE_NERD_FONTS=1; plain ASCII otherwise.
var (
	IconOK          string
	IconDegraded    string
	IconStale       string
	IconUnavailable string
	IconPaused      string
	IconPlaying     string
	IconRecording   string
)

func init() {
	if os.Getenv("PGPULSE_NERD_FONTS") == "1" {
		IconOK = "󰄬"
		IconDegraded = ""
		IconStale = "󰔟"
		IconUnavailable = ""
		IconPaused = "󰏤"
		IconPlaying = "󰐊"
		IconRecording = "󰑊"
		return
	}
	IconOK = "+"
	IconDegraded = "~"
	IconStale = "-"
	IconUnavailable = "x"
	IconPaused = "||"
	IconPlaying = ">"
	IconRecording = "*"
}
