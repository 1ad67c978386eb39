package player

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-loop/config"
	"go-loop/loop"
	"go-loop/midi"
	"go-loop/sequence"
	"go-loop/transport"
)

type sink struct {
	mu   sync.Mutex
	msgs []gomidi.Message
}

func (s *sink) send(msg gomidi.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *sink) noteOns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		var ch, key, vel uint8
		if m.GetNoteOn(&ch, &key, &vel) {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T) (*Manager, *transport.Manual, *sink) {
	t.Helper()
	tr := transport.NewManual()
	out := &sink{}
	eng := midi.NewEngine(out.send, tr, 1)
	m := NewManager(tr, eng, config.DefaultConfig().Loop, sequence.NewStore(t.TempDir()))
	t.Cleanup(m.Close)
	return m, tr, out
}

func testFile() *sequence.File {
	return &sequence.File{
		Name:  "riff",
		Tempo: 120,
		Notes: loop.Sequence{
			{ID: "a", Pitch: "C4", Start: 0, Dur: 0.4, Vel: 0.7},
			{ID: "b", Pitch: "E4", Start: 1, Dur: 0.4, Vel: 0.7},
		},
	}
}

func TestPlayWithoutSequence(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.ErrorIs(t, m.Play(), ErrNoSequence)
	assert.Equal(t, "nothing to loop", m.Message())
	assert.Equal(t, loop.Idle, m.Controller().State())
}

func TestPlayAndToggle(t *testing.T) {
	m, tr, out := newTestManager(t)
	m.SetSequence(testFile())
	assert.Contains(t, m.Message(), "loaded riff: 2 notes")

	cfg := m.Controller().Config()
	assert.True(t, cfg.Bounds().Valid())

	require.NoError(t, m.Play())
	assert.Equal(t, loop.Looping, m.Controller().State())

	tr.AdvanceTo(1.5)
	assert.GreaterOrEqual(t, out.noteOns(), 2)

	require.NoError(t, m.Toggle())
	assert.Equal(t, loop.Stopping, m.Controller().State())

	// Toggle while stopping does nothing
	require.NoError(t, m.Toggle())
	assert.Equal(t, loop.Stopping, m.Controller().State())

	tr.Drain()
	assert.Equal(t, loop.Idle, m.Controller().State())
	assert.Equal(t, 0, tr.Pending())

	require.NoError(t, m.Toggle())
	assert.Equal(t, loop.Looping, m.Controller().State())
}

func TestSetTempoClamps(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.SetSequence(testFile())

	m.SetTempo(5)
	assert.Equal(t, MinTempo, m.Tempo())
	m.SetTempo(999)
	assert.Equal(t, MaxTempo, m.Tempo())

	cfg := m.Controller().Config()
	assert.Equal(t, 120.0, cfg.OriginalTempo)
	assert.Equal(t, float64(MaxTempo), cfg.TargetTempo)

	st, tempo := m.GetState()
	assert.Equal(t, MaxTempo, tempo)
	assert.Equal(t, loop.Idle, st.State)
}

func TestCycleGrid(t *testing.T) {
	m, _, _ := newTestManager(t)
	grid := func() float64 { return m.Controller().Config().QuantizeGrid }

	assert.Equal(t, 0.25, grid())
	m.CycleGrid(1)
	assert.Equal(t, 0.5, grid())
	m.CycleGrid(-1)
	m.CycleGrid(-1)
	assert.Equal(t, 0.125, grid())
	m.CycleGrid(-1)
	m.CycleGrid(-1)
	assert.Equal(t, 1.0, grid())

	m.ToggleQuantize()
	assert.True(t, m.Controller().Config().QuantizeEnabled)
	m.ToggleQuantize()
	assert.False(t, m.Controller().Config().QuantizeEnabled)
}

func TestFormatGrid(t *testing.T) {
	assert.Equal(t, "1/64", FormatGrid(0.0625))
	assert.Equal(t, "1/16", FormatGrid(0.25))
	assert.Equal(t, "1/4", FormatGrid(1))
	assert.Equal(t, "0.300", FormatGrid(0.3))
}

func TestNudgeSwingAndCrossfade(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.NudgeSwing(0.25)
	assert.InDelta(t, 0.25, m.Controller().Config().SwingAmount, 1e-9)
	m.NudgeSwing(5)
	assert.Equal(t, 1.0, m.Controller().Config().SwingAmount)
	m.NudgeSwing(-5)
	assert.Equal(t, 0.0, m.Controller().Config().SwingAmount)

	before := m.Controller().Config().CrossfadeEnabled
	m.ToggleCrossfade()
	assert.Equal(t, !before, m.Controller().Config().CrossfadeEnabled)
}

func TestCycleMaxLoops(t *testing.T) {
	m, _, _ := newTestManager(t)
	var seen []int
	for range loopCounts {
		m.CycleMaxLoops()
		seen = append(seen, m.Controller().Config().MaxLoops)
	}
	assert.Equal(t, []int{1, 2, 4, 8, 16, loop.Infinite}, seen)
}

func TestBoundsEditing(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.SetSequence(testFile())
	detected := m.Controller().Config().Bounds()

	// one beat at 120 BPM is 0.5s
	m.NudgeBounds(1, 2)
	got := m.Controller().Config().Bounds()
	assert.InDelta(t, detected.Start+0.5, got.Start, 1e-9)
	assert.InDelta(t, detected.End+1.0, got.End, 1e-9)

	m.NudgeBounds(0, -100)
	assert.Contains(t, m.Message(), "InvalidBounds")
	assert.True(t, m.Controller().Config().Bounds().Valid())

	m.DetectBounds()
	assert.Equal(t, detected, m.Controller().Config().Bounds())
}

func TestHandleCommand(t *testing.T) {
	m, tr, _ := newTestManager(t)
	m.SetSequence(testFile())

	m.HandleCommand(midi.CommandStart)
	assert.Equal(t, loop.Looping, m.Controller().State())
	m.HandleCommand(midi.CommandStart)
	assert.Equal(t, loop.Looping, m.Controller().State())

	m.HandleCommand(midi.CommandStop)
	tr.Drain()
	assert.Equal(t, loop.Idle, m.Controller().State())

	m.HandleCommand(midi.CommandToggle)
	assert.Equal(t, loop.Looping, m.Controller().State())
	m.HandleCommand(midi.CommandToggle)
	assert.Equal(t, loop.Stopping, m.Controller().State())
}

func TestRunControlConsumesUntilClosed(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.SetSequence(testFile())

	cmds := make(chan midi.Command, 2)
	cmds <- midi.CommandToggle
	close(cmds)

	m.RunControl(cmds)
	assert.Equal(t, loop.Looping, m.Controller().State())
}

func TestRunControlReturnsOnClose(t *testing.T) {
	m, _, _ := newTestManager(t)
	done := make(chan struct{})
	go func() {
		m.RunControl(make(chan midi.Command))
		close(done)
	}()
	m.Close()
	<-done
}

func TestProjectRoundTrip(t *testing.T) {
	tr := transport.NewManual()
	store := sequence.NewStore(t.TempDir())
	m := NewManager(tr, midi.NewEngine(nil, tr, 1), config.DefaultConfig().Loop, store)

	m.SetSequence(testFile())
	m.SetTempo(90)
	m.NudgeSwing(0.3)
	m.CycleMaxLoops()

	info, err := m.SaveProject("jam", "take")
	require.NoError(t, err)
	assert.Equal(t, "take", info.Name)
	assert.Equal(t, "jam", m.Project())

	other := NewManager(tr, midi.NewEngine(nil, tr, 1), config.DefaultConfig().Loop, store)
	require.NoError(t, other.LoadProject("jam"))

	assert.Equal(t, 90, other.Tempo())
	assert.Equal(t, m.Controller().Config(), other.Controller().Config())
	require.NotNil(t, other.Sequence())
	assert.Equal(t, testFile().Notes, other.Sequence().Notes)
	assert.Equal(t, "loaded project jam", other.Message())

	assert.ErrorIs(t, other.LoadProject("missing"), sequence.ErrNoSaves)
}

func TestProjectWithoutStore(t *testing.T) {
	tr := transport.NewManual()
	m := NewManager(tr, midi.NewEngine(nil, tr, 1), config.DefaultConfig().Loop, nil)

	_, err := m.SaveProject("p", "")
	assert.Error(t, err)
	assert.Error(t, m.LoadProject("p"))

	m2, _, _ := newTestManager(t)
	_, err = m2.SaveProject("p", "")
	assert.ErrorIs(t, err, ErrNoSequence)
}

func (s *sink) volumes() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uint8
	for _, m := range s.msgs {
		var ch, cc, val uint8
		if m.GetControlChange(&ch, &cc, &val) && cc == 7 {
			out = append(out, val)
		}
	}
	return out
}

func TestStopDuringSeamDuckNeverRaisesVolume(t *testing.T) {
	m, tr, out := newTestManager(t)
	m.SetSequence(testFile())
	cfg := m.Controller().Config()
	require.True(t, cfg.CrossfadeEnabled)
	require.Greater(t, cfg.FadeOutDuration, 0.0)

	require.NoError(t, m.Play())
	// inside the first seam duck
	seam := cfg.End - cfg.Start - cfg.CrossfadeDuration
	tr.AdvanceTo(seam + cfg.CrossfadeDuration*0.4)
	before := out.volumes()
	require.NotEmpty(t, before)

	m.Stop()
	tr.Drain()
	require.Equal(t, loop.Idle, m.Controller().State())

	after := out.volumes()[len(before):]
	require.NotEmpty(t, after)
	prev := before[len(before)-1]
	// the fade to silence, then the unity reset on teardown
	for _, v := range after[:len(after)-1] {
		assert.LessOrEqual(t, v, prev)
		prev = v
	}
	assert.Equal(t, uint8(127), after[len(after)-1])
}
