// Package theme holds the palettes and lipgloss styles shared by the
// dashboard and the CLI's operator output.
package theme

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const defaultThemeName = "kanagawa"

// --- Kanagawa palette ---
const (
	kanagawaDarkGreen    = "#98BB6C"
	kanagawaDarkYellow   = "#FF9E3B"
	kanagawaDarkRed      = "#FF5D62"
	kanagawaDarkOrange   = "#FFA066"
	kanagawaDarkCyan     = "#7E9CD8"
	kanagawaDarkViolet   = "#957FB8"
	kanagawaDarkText     = "#DCD7BA"
	kanagawaDarkMuted    = "#727169"
	kanagawaDarkBorder   = "#363646"
	kanagawaDarkSelected = "#223249"

	kanagawaLightGreen    = "#4E7C5A"
	kanagawaLightYellow   = "#A68A64"
	kanagawaLightRed      = "#C34043"
	kanagawaLightOrange   = "#CC6B4E"
	kanagawaLightCyan     = "#5B8BBE"
	kanagawaLightViolet   = "#674D7A"
	kanagawaLightText     = "#2B2F42"
	kanagawaLightMuted    = "#6C7086"
	kanagawaLightBorder   = "#B5BDC5"
	kanagawaLightSelected = "#E2E6F3"
)

// Colors is the palette a theme is built from.
type Colors struct {
	Green    lipgloss.TerminalColor
	Yellow   lipgloss.TerminalColor
	Red      lipgloss.TerminalColor
	Orange   lipgloss.TerminalColor
	Cyan     lipgloss.TerminalColor
	Violet   lipgloss.TerminalColor
	Text     lipgloss.TerminalColor
	Muted    lipgloss.TerminalColor
	Border   lipgloss.TerminalColor
	Selected lipgloss.TerminalColor
}

// Theme holds the pre-configured styles.
type Theme struct {
	Colors Colors

	Header lipgloss.Style
	Title  lipgloss.Style

	// Status indicators
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Bold   lipgloss.Style
	Normal lipgloss.Style
	Muted  lipgloss.Style

	// Source panels
	Panel      lipgloss.Style
	PanelTitle lipgloss.Style
	FieldName  lipgloss.Style
	FieldValue lipgloss.Style

	Highlight lipgloss.Style
	Accent    lipgloss.Style
	StatusBar lipgloss.Style
}

var themeRegistry = map[string]func() Colors{
	"kanagawa": newKanagawaColors,
	"terminal": newTerminalColors,
}

// DefaultTheme is the theme selected by PGPULSE_THEME, or kanagawa.
var DefaultTheme = NewTheme()

// NewTheme creates a theme from the PGPULSE_THEME selection.
func NewTheme() *Theme {
	return NewThemeWithName(os.Getenv("PGPULSE_THEME"))
}

// NewThemeWithName constructs a theme from a palette name. Unknown names use
// the default palette.
func NewThemeWithName(name string) *Theme {
	builder, ok := themeRegistry[normalizeThemeName(name)]
	if !ok {
		builder = themeRegistry[defaultThemeName]
	}
	return newThemeFromColors(builder())
}

// RenderHeader renders a header with the default styling.
func RenderHeader(title string) string {
	return DefaultTheme.Header.Render(title)
}

// RenderStatus renders text with the appropriate status style.
func RenderStatus(status, text string) string {
	switch status {
	case "success":
		return DefaultTheme.Success.Render(text)
	case "error":
		return DefaultTheme.Error.Render(text)
	case "warning":
		return DefaultTheme.Warning.Render(text)
	case "info":
		return DefaultTheme.Info.Render(text)
	default:
		return text
	}
}

func newThemeFromColors(colors Colors) *Theme {
	return &Theme{
		Colors: colors,

		Header: lipgloss.NewStyle().
			Bold(true).
			MarginBottom(1),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Cyan),

		Success: lipgloss.NewStyle().
			Foreground(colors.Green).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(colors.Red).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(colors.Yellow).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(colors.Cyan).
			Bold(true),

		Bold: lipgloss.NewStyle().
			Bold(true),

		Normal: lipgloss.NewStyle(),

		Muted: lipgloss.NewStyle().
			Faint(true),

		Panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colors.Border).
			Padding(0, 1),

		PanelTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Violet),

		FieldName: lipgloss.NewStyle().
			Foreground(colors.Muted),

		FieldValue: lipgloss.NewStyle().
			Foreground(colors.Text),

		Highlight: lipgloss.NewStyle().
			Foreground(colors.Orange).
			Bold(true),

		Accent: lipgloss.NewStyle().
			Foreground(colors.Violet).
			Bold(true),

		StatusBar: lipgloss.NewStyle().
			Background(colors.Selected).
			Foreground(colors.Text).
			Padding(0, 1),
	}
}

func normalizeThemeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, " ", "-")
	return strings.ReplaceAll(normalized, "_", "-")
}

func newKanagawaColors() Colors {
	return Colors{
		Green:    lipgloss.AdaptiveColor{Light: kanagawaLightGreen, Dark: kanagawaDarkGreen},
		Yellow:   lipgloss.AdaptiveColor{Light: kanagawaLightYellow, Dark: kanagawaDarkYellow},
		Red:      lipgloss.AdaptiveColor{Light: kanagawaLightRed, Dark: kanagawaDarkRed},
		Orange:   lipgloss.AdaptiveColor{Light: kanagawaLightOrange, Dark: kanagawaDarkOrange},
		Cyan:     lipgloss.AdaptiveColor{Light: kanagawaLightCyan, Dark: kanagawaDarkCyan},
		Violet:   lipgloss.AdaptiveColor{Light: kanagawaLightViolet, Dark: kanagawaDarkViolet},
		Text:     lipgloss.AdaptiveColor{Light: kanagawaLightText, Dark: kanagawaDarkText},
		Muted:    lipgloss.AdaptiveColor{Light: kanagawaLightMuted, Dark: kanagawaDarkMuted},
		Border:   lipgloss.AdaptiveColor{Light: kanagawaLightBorder, Dark: kanagawaDarkBorder},
		Selected: lipgloss.AdaptiveColor{Light: kanagawaLightSelected, Dark: kanagawaDarkSelected},
	}
}

func newTerminalColors() Colors {
	return Colors{
		Green:    lipgloss.Color("2"),
		Yellow:   lipgloss.Color("3"),
		Red:      lipgloss.Color("1"),
		Orange:   lipgloss.Color("208"),
		Cyan:     lipgloss.Color("6"),
		Violet:   lipgloss.Color("5"),
		Text:     lipgloss.Color("7"),
		Muted:    lipgloss.Color("8"),
		Border:   lipgloss.Color("8"),
		Selected: lipgloss.Color("8"),
	}
}
