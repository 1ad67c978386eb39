// Package player composes the loop controller, the engine and the loaded
// sequence into the object the TUI and control inputs drive.
package player

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go-loop/config"
	"go-loop/debug"
	"go-loop/loop"
	"go-loop/midi"
	"go-loop/sequence"
)

// Tempo limits
const (
	MinTempo = 20
	MaxTempo = 300
)

// ErrNoSequence is returned by Play before anything is loaded
var ErrNoSequence = errors.New("player: no sequence loaded")

// uiFPS is how often UpdateChan fires while looping
const uiFPS = 30

// Quantize grids offered in the UI, as fractions of a beat
var grids = []float64{0.0625, 0.125, 0.25, 0.5, 1.0}

// Loop counts offered in the UI
var loopCounts = []int{loop.Infinite, 1, 2, 4, 8, 16}

// Manager owns the loop controller and the current sequence
type Manager struct {
	ctrl  *loop.Controller
	store *sequence.Store

	mu      sync.RWMutex
	file    *sequence.File
	tempo   int
	project string
	message string

	stopChan chan struct{}
	stopOnce sync.Once

	// Notify TUI of updates
	UpdateChan chan struct{}
}

// NewManager creates a manager driving eng on tr. store may be nil, which
// disables project saves.
func NewManager(tr loop.Transport, eng loop.Engine, defaults config.LoopDefaults, store *sequence.Store) *Manager {
	m := &Manager{
		store:      store,
		tempo:      int(loop.DefaultTempo),
		stopChan:   make(chan struct{}),
		UpdateChan: make(chan struct{}, 1),
	}
	cfg := defaults.ToLoopConfig(loop.DefaultTempo, loop.DefaultTempo)
	m.ctrl = loop.NewController(tr, eng, cfg, loop.WithObserver(m.advise))
	return m
}

// Controller returns the underlying loop controller
func (m *Manager) Controller() *loop.Controller {
	return m.ctrl
}

// StartRuntime starts the UI refresh goroutine
func (m *Manager) StartRuntime() {
	go m.uiLoop()
}

// Close stops playback and the runtime goroutines
func (m *Manager) Close() {
	m.ctrl.Stop()
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Manager) uiLoop() {
	ticker := time.NewTicker(time.Second / uiFPS)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			if m.ctrl.State() != loop.Idle {
				m.notifyUpdate()
			}
		}
	}
}

// notifyUpdate wakes the TUI without blocking
func (m *Manager) notifyUpdate() {
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}

// advise is the controller's observer. It runs under the controller lock, so it
// only touches manager state.
func (m *Manager) advise(a loop.Advisory) {
	m.setMessage("%s", a.Error())
}

func (m *Manager) setMessage(format string, args ...any) {
	m.mu.Lock()
	m.message = fmt.Sprintf(format, args...)
	m.mu.Unlock()
	m.notifyUpdate()
}

// Message returns the last status line
func (m *Manager) Message() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.message
}

// SetSequence replaces the loaded sequence. Bounds are re-detected and the
// recorded tempo becomes the conversion source.
func (m *Manager) SetSequence(f *sequence.File) {
	m.mu.Lock()
	m.file = f
	tempo := m.tempo
	m.mu.Unlock()

	m.ctrl.SetTempoConversion(f.Tempo, float64(tempo))
	start, end := m.ctrl.AutoDetectBounds(f.Notes)
	m.setMessage("loaded %s: %d notes, loop %.2f-%.2fs", f.Name, len(f.Notes), start, end)
	debug.Log("player", "sequence %s loaded (%d notes, %.1f BPM)", f.Name, len(f.Notes), f.Tempo)
}

// Sequence returns the loaded sequence (nil if none)
func (m *Manager) Sequence() *sequence.File {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.file
}

// Play starts looping the loaded sequence at the current tempo
func (m *Manager) Play() error {
	m.mu.RLock()
	f := m.file
	m.mu.RUnlock()
	if f == nil {
		m.setMessage("nothing to loop")
		return ErrNoSequence
	}

	cfg := m.ctrl.Config()
	cfg.Enabled = true
	if err := m.ctrl.Start(f.Notes, cfg); err != nil {
		m.setMessage("start failed: %v", err)
		return err
	}
	m.notifyUpdate()
	return nil
}

// Stop ends the loop (with its fade-out)
func (m *Manager) Stop() {
	m.ctrl.Stop()
	m.notifyUpdate()
}

// Toggle starts when idle and stops when looping
func (m *Manager) Toggle() error {
	switch m.ctrl.State() {
	case loop.Idle:
		return m.Play()
	case loop.Looping:
		m.Stop()
	}
	return nil
}

// SetTempo sets the playback BPM; applies at the next Play
func (m *Manager) SetTempo(bpm int) {
	if bpm < MinTempo {
		bpm = MinTempo
	}
	if bpm > MaxTempo {
		bpm = MaxTempo
	}

	m.mu.Lock()
	m.tempo = bpm
	original := loop.DefaultTempo
	if m.file != nil {
		original = m.file.Tempo
	}
	m.mu.Unlock()

	m.ctrl.SetTempoConversion(original, float64(bpm))
	m.notifyUpdate()
}

// Tempo returns the playback BPM
func (m *Manager) Tempo() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tempo
}

// GetState returns the loop status and the playback tempo
func (m *Manager) GetState() (loop.Status, int) {
	return m.ctrl.Status(), m.Tempo()
}

// ToggleQuantize flips quantization on the current grid
func (m *Manager) ToggleQuantize() {
	cfg := m.ctrl.Config()
	m.ctrl.SetQuantization(!cfg.QuantizeEnabled, cfg.QuantizeGrid)
	m.notifyUpdate()
}

// CycleGrid moves to the next (dir > 0) or previous quantize grid
func (m *Manager) CycleGrid(dir int) {
	cfg := m.ctrl.Config()
	idx := 0
	for i, g := range grids {
		if g == cfg.QuantizeGrid {
			idx = i
		}
	}
	idx = (idx + dir + len(grids)) % len(grids)
	m.ctrl.SetQuantization(cfg.QuantizeEnabled, grids[idx])
	m.notifyUpdate()
}

// NudgeSwing adds delta to the swing amount
func (m *Manager) NudgeSwing(delta float64) {
	m.ctrl.SetSwing(m.ctrl.Config().SwingAmount + delta)
	m.notifyUpdate()
}

// ToggleCrossfade flips the seam crossfade
func (m *Manager) ToggleCrossfade() {
	cfg := m.ctrl.Config()
	m.ctrl.SetCrossfade(!cfg.CrossfadeEnabled, cfg.CrossfadeDuration)
	m.notifyUpdate()
}

// CycleMaxLoops steps through the offered loop counts
func (m *Manager) CycleMaxLoops() {
	current := m.ctrl.Config().MaxLoops
	idx := 0
	for i, n := range loopCounts {
		if n == current {
			idx = i
		}
	}
	m.ctrl.SetMaxLoops(loopCounts[(idx+1)%len(loopCounts)])
	m.notifyUpdate()
}

// DetectBounds re-derives the loop bounds from the loaded sequence
func (m *Manager) DetectBounds() {
	if f := m.Sequence(); f != nil {
		m.ctrl.AutoDetectBounds(f.Notes)
		m.notifyUpdate()
	}
}

// NudgeBounds moves the loop start and end by whole beats at the target tempo
func (m *Manager) NudgeBounds(startBeats, endBeats int) {
	cfg := m.ctrl.Config()
	beat := cfg.BeatDur()
	m.ctrl.SetLoopBounds(cfg.Start+float64(startBeats)*beat, cfg.End+float64(endBeats)*beat)
	m.notifyUpdate()
}

// HandleCommand applies a control-surface command
func (m *Manager) HandleCommand(cmd midi.Command) {
	debug.Log("player", "command %s", cmd)
	var err error
	switch cmd {
	case midi.CommandStart:
		if m.ctrl.State() == loop.Idle {
			err = m.Play()
		}
	case midi.CommandStop:
		m.Stop()
	case midi.CommandToggle:
		err = m.Toggle()
	}
	if err != nil {
		debug.Warn("player", "command %s: %v", cmd, err)
	}
}

// RunControl consumes commands until the channel closes (blocking - run in goroutine)
func (m *Manager) RunControl(cmds <-chan midi.Command) {
	for {
		select {
		case <-m.stopChan:
			return
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			m.HandleCommand(cmd)
		}
	}
}

// SaveProject stores the loop settings and sequence under the current project
func (m *Manager) SaveProject(project, label string) (sequence.SaveInfo, error) {
	if m.store == nil {
		return sequence.SaveInfo{}, errors.New("player: no project store")
	}
	f := m.Sequence()
	if f == nil {
		return sequence.SaveInfo{}, ErrNoSequence
	}

	info, err := m.store.Save(project, label, sequence.Project{Config: m.ctrl.Config(), Sequence: *f})
	if err != nil {
		m.setMessage("save failed: %v", err)
		return info, err
	}
	m.mu.Lock()
	m.project = project
	m.mu.Unlock()
	m.setMessage("saved %s/%s", project, info.Filename)
	return info, nil
}

// LoadProject restores the latest save of project. Loading stops any running loop.
func (m *Manager) LoadProject(project string) error {
	if m.store == nil {
		return errors.New("player: no project store")
	}
	p, err := m.store.Load(project, "")
	if err != nil {
		m.setMessage("load failed: %v", err)
		return err
	}

	m.ctrl.Stop()
	f := p.Sequence
	cfg := p.Config

	m.mu.Lock()
	m.file = &f
	m.project = project
	m.tempo = int(cfg.TargetTempo)
	m.mu.Unlock()

	m.ctrl.SetTempoConversion(cfg.OriginalTempo, cfg.TargetTempo)
	if cfg.Bounds().Valid() {
		m.ctrl.SetLoopBounds(cfg.Start, cfg.End)
	} else {
		m.ctrl.ClearLoopBounds()
	}
	m.ctrl.SetQuantization(cfg.QuantizeEnabled, cfg.QuantizeGrid)
	m.ctrl.SetSwing(cfg.SwingAmount)
	m.ctrl.SetCrossfade(cfg.CrossfadeEnabled, cfg.CrossfadeDuration)
	m.ctrl.SetFades(cfg.FadeInDuration, cfg.FadeOutDuration)
	m.ctrl.SetMaxLoops(cfg.MaxLoops)
	m.setMessage("loaded project %s", project)
	return nil
}

// Project returns the current project name
func (m *Manager) Project() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.project
}

// FormatGrid formats a beat fraction as a note value
func FormatGrid(step float64) string {
	switch step {
	case 0.0625:
		return "1/64"
	case 0.125:
		return "1/32"
	case 0.25:
		return "1/16"
	case 0.5:
		return "1/8"
	case 1.0:
		return "1/4"
	default:
		return fmt.Sprintf("%.3f", step)
	}
}
