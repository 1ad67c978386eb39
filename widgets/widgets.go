package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderBar renders a progress bar of width cells with frac (0-1) filled.
// The playhead sits on the last filled cell.
func RenderBar(frac float64, width int, filled, empty, playhead rune, color lipgloss.Color) string {
	if width <= 0 {
		return ""
	}
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}

	n := int(frac * float64(width))
	var bar strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i == n && frac > 0 && frac < 1:
			bar.WriteRune(playhead)
		case i < n:
			bar.WriteRune(filled)
		default:
			bar.WriteRune(empty)
		}
	}
	return lipgloss.NewStyle().Foreground(color).Render(bar.String())
}

// RenderField renders a single labelled value: "label  value"
func RenderField(label, value string, labelColor lipgloss.Color) string {
	style := lipgloss.NewStyle().Foreground(labelColor)
	return fmt.Sprintf("  %s %s", style.Render(fmt.Sprintf("%-10s", label)), value)
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
