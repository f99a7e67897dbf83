package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/grovetools/pgpulse/tui/theme"
)

// KeysAnnotation carries a command's dashboard key reference: one
// "key<TAB>action" pair per line. Commands that open the dashboard set it so
// --help lists the bindings.
const KeysAnnotation = "pgpulse.keys"

const (
	maxWidth = 72
	minWidth = 40
)

// helpWidth returns the usable help width for stdout.
func helpWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < minWidth || width > maxWidth {
		return maxWidth
	}
	return width
}

// wrapText wraps text to width, preserving existing line breaks.
func wrapText(text string, width int) string {
	if width <= 0 {
		width = maxWidth
	}

	var out []string
	for _, paragraph := range strings.Split(text, "\n") {
		if len(paragraph) <= width {
			out = append(out, paragraph)
			continue
		}
		var line string
		for _, word := range strings.Fields(paragraph) {
			switch {
			case line == "":
				line = word
			case len(line)+1+len(word) <= width:
				line += " " + word
			default:
				out = append(out, line)
				line = word
			}
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// parseDescription splits a long description at its Examples: marker.
func parseDescription(long string) (description string, examples string) {
	for _, marker := range []string{"\nExamples:\n", "\nExample:\n"} {
		if idx := strings.Index(long, marker); idx != -1 {
			return strings.TrimSpace(long[:idx]), strings.TrimSpace(long[idx+len(marker):])
		}
	}
	return long, ""
}

// SetStyledHelp applies the pgpulse help layout to a command.
func SetStyledHelp(cmd *cobra.Command) {
	cmd.SetHelpFunc(styledHelpFunc)
}

// ApplyStyledHelpRecursive applies styled help to a command tree and silences
// cobra's usage dump; errors are reported by ErrorHandler instead.
// Call it after all subcommands are added.
func ApplyStyledHelpRecursive(cmd *cobra.Command) {
	cmd.SetHelpFunc(styledHelpFunc)
	cmd.SetUsageFunc(func(*cobra.Command) error { return nil })
	for _, sub := range cmd.Commands() {
		ApplyStyledHelpRecursive(sub)
	}
}

// PrintError prints a styled error with a pointer to --help.
func PrintError(cmd *cobra.Command, err error) {
	t := theme.DefaultTheme
	red := lipgloss.NewStyle().Bold(true).Foreground(t.Colors.Red)
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", red.Render("Error:"), err.Error())
	fmt.Fprintln(cmd.ErrOrStderr(), t.Muted.Render(fmt.Sprintf("Run '%s --help' for usage.", cmd.CommandPath())))
}

// helpPrinter renders one command's help page.
type helpPrinter struct {
	w       io.Writer
	t       *theme.Theme
	width   int
	section lipgloss.Style
	name    lipgloss.Style
	flag    lipgloss.Style
}

func newHelpPrinter(w io.Writer) *helpPrinter {
	t := theme.DefaultTheme
	return &helpPrinter{
		w:       w,
		t:       t,
		width:   helpWidth() - 2,
		section: lipgloss.NewStyle().Italic(true).Foreground(t.Colors.Orange),
		name:    lipgloss.NewStyle().Bold(true).Foreground(t.Colors.Cyan),
		flag:    lipgloss.NewStyle().Foreground(t.Colors.Violet),
	}
}

func (p *helpPrinter) heading(title string) {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, " "+p.section.Render(title))
}

func (p *helpPrinter) paragraph(text string, style *lipgloss.Style) {
	for _, line := range strings.Split(wrapText(text, p.width), "\n") {
		if style != nil {
			line = style.Render(line)
		}
		fmt.Fprintln(p.w, " "+line)
	}
}

// table prints name/description rows with the names padded to one column.
func (p *helpPrinter) table(rows [][2]string, style lipgloss.Style) {
	widest := 0
	for _, row := range rows {
		widest = max(widest, len(row[0]))
	}
	for _, row := range rows {
		pad := strings.Repeat(" ", widest-len(row[0]))
		fmt.Fprintf(p.w, " %s%s  %s\n", style.Render(row[0]), pad, row[1])
	}
}

func (p *helpPrinter) commands(cmd *cobra.Command) {
	var rows [][2]string
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			rows = append(rows, [2]string{sub.Name(), sub.Short})
		}
	}
	if len(rows) == 0 {
		return
	}
	p.heading("COMMANDS")
	p.table(rows, p.name)
}

// flags lists a leaf command's flags in full; parent commands get one
// compact line since their subcommands document the details.
func (p *helpPrinter) flags(cmd *cobra.Command) {
	var visible []*pflag.Flag
	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if !f.Hidden {
			visible = append(visible, f)
		}
	})
	if len(visible) == 0 {
		return
	}

	if cmd.HasAvailableSubCommands() {
		names := make([]string, 0, len(visible))
		for _, f := range visible {
			names = append(names, strings.TrimSpace(formatFlagName(f)))
		}
		fmt.Fprintln(p.w)
		fmt.Fprintln(p.w, " "+p.t.Muted.Render("Flags: "+strings.Join(names, ", ")))
		return
	}

	rows := make([][2]string, 0, len(visible))
	for _, f := range visible {
		usage := f.Usage
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "[]" && f.DefValue != "0s" {
			usage += p.t.Muted.Render(fmt.Sprintf(" (default: %s)", f.DefValue))
		}
		rows = append(rows, [2]string{formatFlagName(f), usage})
	}
	p.heading("FLAGS")
	p.table(rows, p.flag)
}

func (p *helpPrinter) keys(cmd *cobra.Command) {
	ref := cmd.Annotations[KeysAnnotation]
	if ref == "" {
		return
	}
	var rows [][2]string
	for _, line := range strings.Split(ref, "\n") {
		if k, action, ok := strings.Cut(line, "\t"); ok {
			rows = append(rows, [2]string{k, action})
		}
	}
	p.heading("KEYS")
	p.table(rows, p.t.Bold)
}

// examples styles comment lines muted and highlights the binary, the
// subcommand and flags on command lines.
func (p *helpPrinter) examples(text, root string) {
	p.heading("EXAMPLES")
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			fmt.Fprintln(p.w)
		case strings.HasPrefix(trimmed, "#"):
			fmt.Fprintln(p.w, " "+p.t.Muted.Render(trimmed))
		default:
			fmt.Fprintln(p.w, " "+styleCommandLine(trimmed, root, p.name, p.t.Bold, p.flag))
		}
	}
}

// styleCommandLine applies styling to the parts of an example command.
func styleCommandLine(line, rootCmd string, mainStyle, subStyle, flagStyle lipgloss.Style) string {
	parts := strings.Fields(line)
	for i, part := range parts {
		switch {
		case i == 0 && part == rootCmd:
			parts[i] = mainStyle.Render(part)
		case strings.HasPrefix(part, "-"):
			parts[i] = flagStyle.Render(part)
		case i == 1:
			parts[i] = subStyle.Render(part)
		}
	}
	return "  " + strings.Join(parts, " ")
}

func styledHelpFunc(cmd *cobra.Command, args []string) {
	p := newHelpPrinter(cmd.OutOrStdout())
	title := lipgloss.NewStyle().Bold(true).Foreground(p.t.Colors.Orange)
	italic := lipgloss.NewStyle().Italic(true)

	fmt.Fprintln(p.w, " "+title.Render(strings.ToUpper(cmd.CommandPath())))

	description, examples := cmd.Short, cmd.Example
	if cmd.Long != "" {
		var fromLong string
		description, fromLong = parseDescription(cmd.Long)
		if examples == "" {
			examples = fromLong
		}
	}
	if cmd.Short != "" {
		p.paragraph(cmd.Short, &italic)
	}
	if description != "" && description != cmd.Short {
		fmt.Fprintln(p.w)
		p.paragraph(description, nil)
	}

	if cmd.Runnable() || cmd.HasSubCommands() {
		p.heading("USAGE")
		if cmd.Runnable() {
			fmt.Fprintf(p.w, " %s\n", cmd.UseLine())
		}
		if cmd.HasSubCommands() {
			fmt.Fprintf(p.w, " %s [command]\n", cmd.CommandPath())
		}
	}

	p.commands(cmd)
	p.flags(cmd)
	p.keys(cmd)
	if examples != "" {
		p.examples(examples, cmd.Root().Name())
	}

	if cmd.HasSubCommands() {
		fmt.Fprintf(p.w, "\n Use \"%s [command] --help\" for more information.\n", cmd.CommandPath())
	}
}

// formatFlagName returns "-f, --flag" or "    --flag".
func formatFlagName(f *pflag.Flag) string {
	if f.Shorthand != "" {
		return fmt.Sprintf("-%s, --%s", f.Shorthand, f.Name)
	}
	return fmt.Sprintf("    --%s", f.Name)
}
