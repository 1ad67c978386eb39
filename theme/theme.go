package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Transport state
	Idle     rune // □ nothing scheduled
	Looping  rune // ▶ loop running
	Stopping rune // ◼ fading out

	// Progress bar
	BarFilled   rune // ■ elapsed part of the iteration
	BarEmpty    rune // · remaining part
	BarPlayhead rune // ▸ current position

	// Toggles
	On  rune // ● setting enabled
	Off rune // ○ setting disabled
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Idle:     '□',
			Looping:  '▶',
			Stopping: '◼',

			BarFilled:   '■',
			BarEmpty:    '·',
			BarPlayhead: '▸',

			On:  '●',
			Off: '○',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0 // deep purple
	RoleSurface = 0.1 // dark purple
	RoleMuted   = 0.2 // purple-magenta
	RoleFG      = 0.4 // pink-purple (readable)
	RoleAccent  = 0.5 // vivid magenta
	RoleActive  = 0.7 // soft red
	RoleWarning = 0.8 // orange
)

// Style helpers

func (t *Theme) BG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.At(RoleBG))
}

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.At(RoleFG))
}

func (t *Theme) Accent() lipgloss.Color {
	return rgbToLipgloss(t.Palette.At(RoleAccent))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.At(RoleMuted))
}

func (t *Theme) Active() lipgloss.Color {
	return rgbToLipgloss(t.Palette.At(RoleActive))
}

func (t *Theme) Warning() lipgloss.Color {
	return rgbToLipgloss(t.Palette.At(RoleWarning))
}

// Phase returns the color for a position within the loop iteration
func (t *Theme) Phase(phase float64) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Cycle(phase))
}

// Toggle returns the on/off symbol for a setting
func (t *Theme) Toggle(on bool) string {
	if on {
		return string(t.Symbols.On)
	}
	return string(t.Symbols.Off)
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
