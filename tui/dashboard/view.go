package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/grovetools/pgpulse/internal/daemon/bus"
	"github.com/grovetools/pgpulse/pkg/snapshot"
	"github.com/grovetools/pgpulse/tui/theme"
)

const (
	minPanelWidth = 34
	maxTextWidth  = 40
)

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if !m.have {
		b.WriteString(m.theme.Muted.Render("waiting for the first snapshot..."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.renderPanels())
		b.WriteString("\n")
	}

	for _, n := range m.notices {
		b.WriteString(m.renderNotice(n))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(m.theme.StatusBar.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderHeader() string {
	parts := []string{
		m.theme.Title.Render(m.title),
		m.theme.Accent.Render(m.controls.Mode()),
	}
	if m.have {
		s := m.current
		parts = append(parts,
			fmt.Sprintf("#%d", s.Sequence),
			s.CapturedAt.Wall.Local().Format("2006-01-02 15:04:05"),
		)
		if s.Interval > 0 {
			parts = append(parts, "every "+s.Interval.Round(time.Millisecond).String())
		}
		if s.Elapsed > 0 {
			parts = append(parts, "took "+s.Elapsed.Round(time.Millisecond).String())
		}
	}
	if pos := m.controls.Position(); pos != "" {
		parts = append(parts, pos)
	}
	if m.ended {
		parts = append(parts, m.theme.Warning.Render("ended"))
	}
	return strings.Join(parts, m.theme.Muted.Render(" • "))
}

func (m Model) renderPanels() string {
	ids := m.current.SourceIDs()
	if len(ids) == 0 {
		return m.theme.Muted.Render("no sources configured")
	}

	horizontal := m.width > 0 && len(ids)*minPanelWidth <= m.width
	width := 0
	if horizontal {
		// Two border columns and two padding columns per panel.
		width = m.width/len(ids) - 4
	}

	panels := make([]string, 0, len(ids))
	for _, id := range ids {
		panels = append(panels, m.renderSource(id, width))
	}
	if horizontal {
		return lipgloss.JoinHorizontal(lipgloss.Top, panels...)
	}
	return lipgloss.JoinVertical(lipgloss.Left, panels...)
}

func (m Model) renderSource(id snapshot.SourceID, width int) string {
	r := m.current.Sources[id]

	title := m.theme.PanelTitle.Render(string(id)) + " " + m.statusStyle(r.Status).Render(statusIcon(r.Status)+" "+string(r.Status))
	lines := []string{title}
	if r.Error != "" {
		lines = append(lines, m.theme.Warning.Render(truncate(r.Error, maxTextWidth)))
	}
	if r.Status == snapshot.StatusStale && !r.FetchedAt.IsZero() {
		age := m.current.CapturedAt.Wall.Sub(r.FetchedAt).Round(time.Second)
		lines = append(lines, m.theme.Muted.Render("last read "+age.String()+" earlier"))
	}

	var prev map[string]snapshot.Value
	if m.prev != nil && r.Status.Fresh() {
		if pr, ok := m.prev.Sources[id]; ok && pr.Status.Fresh() {
			prev = pr.Fields
		}
	}
	elapsed := m.current.CapturedAt.Mono - m.prevMono()

	for _, name := range r.FieldNames() {
		value := formatValue(name, r.Fields[name])
		if p, ok := prev[name]; ok {
			if rate, ok := counterRate(p, r.Fields[name], elapsed); ok {
				value += m.theme.Muted.Render(" " + rate)
			}
		}
		lines = append(lines, m.theme.FieldName.Render(name+": ")+m.theme.FieldValue.Render(value))
	}

	style := m.theme.Panel
	if width > 0 {
		style = style.Width(width)
	}
	return style.Render(strings.Join(lines, "\n"))
}

func (m Model) prevMono() time.Duration {
	if m.prev == nil {
		return 0
	}
	return m.prev.CapturedAt.Mono
}

func (m Model) renderNotice(n bus.Notice) string {
	text := fmt.Sprintf("[%s] %s", n.Source, n.Message)
	switch n.Level {
	case bus.NoticeError:
		return m.theme.Error.Render(text)
	case bus.NoticeWarning:
		return m.theme.Warning.Render(text)
	default:
		return m.theme.Info.Render(text)
	}
}

func (m Model) statusStyle(s snapshot.Status) lipgloss.Style {
	switch s {
	case snapshot.StatusOK:
		return m.theme.Success
	case snapshot.StatusDegraded:
		return m.theme.Warning
	case snapshot.StatusStale:
		return m.theme.Highlight
	default:
		return m.theme.Error
	}
}

func statusIcon(s snapshot.Status) string {
	switch s {
	case snapshot.StatusOK:
		return theme.IconOK
	case snapshot.StatusDegraded:
		return theme.IconDegraded
	case snapshot.StatusStale:
		return theme.IconStale
	default:
		return theme.IconUnavailable
	}
}

// formatValue renders a field for humans. Fields named like byte sizes are
// shown in IEC units.
func formatValue(name string, v snapshot.Value) string {
	bytesField := strings.Contains(name, "bytes") || strings.HasSuffix(name, "_size")
	switch v.Kind {
	case snapshot.KindCounter:
		if bytesField && v.Counter >= 0 {
			return humanize.IBytes(uint64(v.Counter))
		}
		return humanize.Comma(v.Counter)
	case snapshot.KindGauge:
		if bytesField && v.Gauge >= 0 {
			return humanize.IBytes(uint64(v.Gauge))
		}
		return humanize.FtoaWithDigits(v.Gauge, 2)
	case snapshot.KindRows:
		return humanize.Comma(int64(len(v.Rows))) + " rows"
	default:
		return truncate(v.Text, maxTextWidth)
	}
}

// counterRate returns the per-second increase between two counter readings.
// A decrease means the counter was reset and yields no rate.
func counterRate(prev, cur snapshot.Value, elapsed time.Duration) (string, bool) {
	if prev.Kind != snapshot.KindCounter || cur.Kind != snapshot.KindCounter || elapsed <= 0 {
		return "", false
	}
	delta := cur.Counter - prev.Counter
	if delta < 0 {
		return "", false
	}
	perSec := float64(delta) / elapsed.Seconds()
	return "+" + humanize.FtoaWithDigits(perSec, 1) + "/s", true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
