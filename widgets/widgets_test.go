package widgets

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
)

func TestRenderBar(t *testing.T) {
	c := lipgloss.Color("#ffffff")
	plain := func(frac float64) string {
		return ansi.Strip(RenderBar(frac, 8, '#', '.', '>', c))
	}

	assert.Equal(t, "........", plain(0))
	assert.Equal(t, "####>...", plain(0.5))
	assert.Equal(t, "########", plain(1))
	assert.Equal(t, "########", plain(3))
	assert.Equal(t, "", RenderBar(0.5, 0, '#', '.', '>', c))
}

func TestRenderKeyHelp(t *testing.T) {
	out := RenderKeyHelp([]KeySection{
		{Title: "Loop", Keys: []KeyBinding{{Key: "space", Desc: "start/stop"}}},
		{Keys: []KeyBinding{{Key: "q", Desc: "quit"}}},
	})
	assert.Equal(t, "Loop\n  space        start/stop\n  q            quit", out)
}
