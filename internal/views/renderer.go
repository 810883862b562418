package views

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	checkboxStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	overdueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// UrgencyColor returns the marker color for an urgency level, from dark
// green (1) to dark red (5).
func UrgencyColor(urgency int) lipgloss.Color {
	switch urgency {
	case 1:
		return lipgloss.Color("#2d5016")
	case 2:
		return lipgloss.Color("#5a9a3a")
	case 4:
		return lipgloss.Color("#e67e7e")
	case 5:
		return lipgloss.Color("#8b0000")
	default:
		return lipgloss.Color("#e6c200")
	}
}

// Renderer formats items as text lines.
type Renderer struct {
	// Colorize enables lipgloss styling. Disable it for pipes and tests.
	Colorize bool
	// Width truncates titles so a line fits; 0 disables truncation.
	Width int
}

// RenderItem renders one row. selected highlights the title.
func (r Renderer) RenderItem(item Item, selected bool) string {
	var b strings.Builder

	box := "[ ]"
	if item.DisplayCompleted {
		box = "[x]"
	}
	if item.Pending {
		box = strings.Replace(box, "[", "~", 1)
		box = strings.Replace(box, "]", "~", 1)
	}
	b.WriteString(r.style(checkboxStyle, box))
	b.WriteString(" ")
	b.WriteString(r.style(lipgloss.NewStyle().Foreground(UrgencyColor(item.Task.Urgency)), "▌"))
	b.WriteString(fmt.Sprintf("%-6s", fmt.Sprintf("#%d", item.Task.ID)))

	title := item.Task.Title
	if r.Width > 0 {
		title = truncate(title, r.Width-40)
	}
	if selected {
		title = r.style(selectedStyle, title)
	}
	b.WriteString(" ")
	b.WriteString(title)

	meta := fmt.Sprintf("u%d d%d p%.1f", item.Task.Urgency, item.Task.Difficulty, item.Task.Priority)
	b.WriteString("  ")
	b.WriteString(r.style(dimStyle, meta))

	if item.DueLabel != "" {
		label := item.DueLabel
		if strings.HasSuffix(label, "Overdue") {
			label = r.style(overdueStyle, label)
		} else {
			label = r.style(dimStyle, label)
		}
		b.WriteString("  ")
		b.WriteString(label)
	}
	if item.CompletedLabel != "" {
		b.WriteString("  ")
		b.WriteString(r.style(dimStyle, "done "+item.CompletedLabel))
	}
	if item.Pending {
		b.WriteString("  ")
		b.WriteString(r.style(pendingStyle, "(pending)"))
	}
	return b.String()
}

// RenderList writes one line per item, or a placeholder when empty.
func (r Renderer) RenderList(w io.Writer, items []Item) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, r.style(dimStyle, "No tasks."))
		return err
	}
	for _, item := range items {
		if _, err := fmt.Fprintln(w, r.RenderItem(item, false)); err != nil {
			return err
		}
	}
	return nil
}

func (r Renderer) style(s lipgloss.Style, text string) string {
	if !r.Colorize {
		return text
	}
	return s.Render(text)
}

// truncate shortens s to at most width runes, marking the cut with "…".
func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}
