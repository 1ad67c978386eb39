package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-loop/loop"
	"go-loop/player"
	"go-loop/theme"
	"go-loop/widgets"
)

// Tempo step for +/- keys
const tempoStep = 5

const defaultProject = "default"

var keyHelp = []widgets.KeySection{
	{Title: "Loop", Keys: []widgets.KeyBinding{
		{Key: "space/p", Desc: "start / stop"},
		{Key: "+/-", Desc: "tempo"},
		{Key: "l", Desc: "loop count"},
		{Key: "x", Desc: "seam crossfade"},
	}},
	{Title: "Timing", Keys: []widgets.KeyBinding{
		{Key: "t", Desc: "quantize on/off"},
		{Key: "g/G", Desc: "grid finer / coarser"},
		{Key: "s/S", Desc: "swing down / up"},
	}},
	{Title: "Bounds", Keys: []widgets.KeyBinding{
		{Key: "[ ]", Desc: "start -/+ beat"},
		{Key: "{ }", Desc: "end -/+ beat"},
		{Key: "d", Desc: "detect from notes"},
	}},
	{Title: "Project", Keys: []widgets.KeyBinding{
		{Key: "w", Desc: "save"},
		{Key: "o", Desc: "open latest save"},
		{Key: "?", Desc: "toggle help"},
		{Key: "q", Desc: "quit"},
	}},
}

type Model struct {
	Manager  *player.Manager
	Theme    *theme.Theme
	Project  string
	showHelp bool
	quitting bool
	width    int
}

type UpdateMsg struct{}

func NewModel(manager *player.Manager, th *theme.Theme, project string) Model {
	if project == "" {
		project = defaultProject
	}
	return Model{
		Manager: manager,
		Theme:   th,
		Project: project,
		width:   80,
	}
}

func ListenForUpdates(manager *player.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return ListenForUpdates(m.Manager)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.Manager.Stop()
			return m, tea.Quit

		case " ", "p":
			m.Manager.Toggle()

		case "+", "=":
			m.Manager.SetTempo(m.Manager.Tempo() + tempoStep)

		case "-", "_":
			m.Manager.SetTempo(m.Manager.Tempo() - tempoStep)

		case "t":
			m.Manager.ToggleQuantize()
		case "g":
			m.Manager.CycleGrid(-1)
		case "G":
			m.Manager.CycleGrid(1)
		case "s":
			m.Manager.NudgeSwing(-0.05)
		case "S":
			m.Manager.NudgeSwing(0.05)
		case "x":
			m.Manager.ToggleCrossfade()
		case "l":
			m.Manager.CycleMaxLoops()

		case "[":
			m.Manager.NudgeBounds(-1, 0)
		case "]":
			m.Manager.NudgeBounds(1, 0)
		case "{":
			m.Manager.NudgeBounds(0, -1)
		case "}":
			m.Manager.NudgeBounds(0, 1)
		case "d":
			m.Manager.DetectBounds()

		case "w":
			m.Manager.SaveProject(m.Project, "")
		case "o":
			m.Manager.LoadProject(m.Project)
		case "?":
			m.showHelp = !m.showHelp
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case UpdateMsg:
		return m, ListenForUpdates(m.Manager)
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	st, tempo := m.Manager.GetState()
	cfg := m.Manager.Controller().Config()
	sym := m.Theme.Symbols

	// Styles
	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	msgStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	state := string(sym.Idle) + " IDLE"
	barColor := m.Theme.Muted()
	switch st.State {
	case loop.Looping:
		state = string(sym.Looping) + " LOOP"
		barColor = m.Theme.Phase(st.Phase)
	case loop.Stopping:
		state = string(sym.Stopping) + " STOP"
		barColor = m.Theme.Active()
	}

	name := "(no sequence)"
	if f := m.Manager.Sequence(); f != nil {
		name = f.Name
	}

	header := headerStyle.Render(fmt.Sprintf("go-loop  %s  %3dbpm  %s  [%s]",
		state, tempo, name, m.Project))

	// Iteration progress
	barWidth := m.width - 20
	if barWidth < 10 {
		barWidth = 10
	}
	bar := widgets.RenderBar(st.Phase, barWidth, sym.BarFilled, sym.BarEmpty, sym.BarPlayhead, barColor)
	progress := fmt.Sprintf("  %s  %s", bar, formatIteration(st))

	label := m.Theme.FG()
	fields := []string{
		widgets.RenderField("bounds", fmt.Sprintf("%.3fs - %.3fs (%.3fs)", st.Start, st.End, st.Duration), label),
		widgets.RenderField("tempo", fmt.Sprintf("%.0f -> %.0f BPM (x%.3f)", cfg.OriginalTempo, cfg.TargetTempo, cfg.TempoRatio()), label),
		widgets.RenderField("quantize", fmt.Sprintf("%s %s", m.Theme.Toggle(cfg.QuantizeEnabled), player.FormatGrid(cfg.QuantizeGrid)), label),
		widgets.RenderField("swing", fmt.Sprintf("%3.0f%%", cfg.SwingAmount*100), label),
		widgets.RenderField("crossfade", fmt.Sprintf("%s %.0fms", m.Theme.Toggle(cfg.CrossfadeEnabled), cfg.CrossfadeDuration*1000), label),
		widgets.RenderField("loops", formatLoops(cfg.MaxLoops), label),
	}

	// Build output
	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(progress)
	out.WriteString("\n\n")
	out.WriteString(strings.Join(fields, "\n"))
	out.WriteString("\n\n")

	if msg := m.Manager.Message(); msg != "" {
		out.WriteString(msgStyle.Render("  " + msg))
		out.WriteString("\n\n")
	}

	if m.showHelp {
		out.WriteString(dimStyle.Render(widgets.RenderKeyHelp(keyHelp)))
	} else {
		out.WriteString(dimStyle.Render("space:start/stop  +/-:tempo  t/g:quantize  s/S:swing  w:save  ?:help  q:quit"))
	}

	return out.String()
}

func formatIteration(st loop.Status) string {
	if st.State == loop.Idle {
		return "--"
	}
	if st.MaxLoops <= 0 {
		return fmt.Sprintf("%d/∞", st.Iteration+1)
	}
	return fmt.Sprintf("%d/%d", st.Iteration+1, st.MaxLoops)
}

func formatLoops(n int) string {
	if n <= 0 {
		return "∞"
	}
	return fmt.Sprintf("%d", n)
}
