package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	trackStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
)

// View renders the TUI.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	switch m.mode {
	case ModeHelp:
		return m.viewHelp()
	default:
		return m.viewNowPlaying()
	}
}

func (m Model) viewNowPlaying() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("spotifyctl"))
	b.WriteString("  ")
	b.WriteString(m.renderDaemon())
	if m.reconnecting {
		b.WriteString(dimStyle.Render("  reconnecting to player"))
	}
	b.WriteString("\n\n")

	s := m.state
	if s.Track == nil {
		b.WriteString(dimStyle.Render("Nothing playing"))
		b.WriteString("\n\n\n")
	} else {
		glyph := "⏸"
		if s.IsPlaying {
			glyph = "▶"
		}
		b.WriteString(glyph + " " + trackStyle.Render(s.Track.Title) + "\n")
		b.WriteString("  " + s.Track.Artist + "\n")
		b.WriteString("  " + dimStyle.Render(s.Track.Album) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(m.progress.ViewAs(s.Progress()))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(formatDuration(s.PositionMs) + " / " + formatDuration(s.DurationMs)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "vol %d%%  shuffle %s  repeat %s",
		percent(s.Volume), onOff(s.Shuffle), s.Repeat)
	b.WriteString("\n\n")

	if m.statusMsg != "" {
		style := statusStyle
		if m.statusErr {
			style = errStyle
		}
		b.WriteString(style.Render(m.statusMsg))
	} else {
		b.WriteString(m.buildKeybindBar(m.width))
	}

	return b.String()
}

func (m Model) renderDaemon() string {
	if m.daemon == nil {
		return ""
	}
	d := m.daemonStatus
	if !d.Running {
		return errStyle.Render("○ daemon stopped")
	}
	text := fmt.Sprintf("● daemon %d", d.PID)
	if !d.Authenticated {
		text += " (not on bus)"
	}
	return okStyle.Render(text)
}

func (m Model) viewHelp() string {
	s := titleStyle.MarginBottom(1).Render("Keyboard Shortcuts") + "\n\n"
	s += m.help.FullHelpView(m.keys.FullHelp())
	s += "\n\n" + dimStyle.Render("Press ? or esc to return")
	return s
}

// keybind represents a single keybind for the status bar.
type keybind struct {
	key  string
	desc string
}

// buildKeybindBar builds a keybind bar that fits within the given width,
// dropping the least important bindings first.
func (m Model) buildKeybindBar(width int) string {
	binds := []keybind{
		{"q", "quit"},
		{"space", "play/pause"},
		{"?", "help"},
		{"n/b", "next/prev"},
		{"←/→", "seek"},
		{"↑/↓", "volume"},
		{"s", "shuffle"},
		{"r", "repeat"},
		{"c", "copy"},
	}

	const separator = "  "
	result := ""
	for _, b := range binds {
		item := keyStyle.Render(b.key) + " " + b.desc
		testLen := lipgloss.Width(b.key + " " + b.desc)
		if result != "" {
			testLen += lipgloss.Width(result) + len(separator)
		}
		if width > 0 && testLen > width {
			break
		}
		if result != "" {
			result += separator
		}
		result += item
	}

	return dimStyle.Render(result)
}

// formatDuration renders milliseconds as m:ss, or h:mm:ss from one hour.
func formatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
