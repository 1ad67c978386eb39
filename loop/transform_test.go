package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainConfig() Config {
	cfg := DefaultConfig()
	cfg.OriginalTempo = 120
	cfg.TargetTempo = 120
	return cfg
}

func TestPrepareQuantizeSnapsToGrid(t *testing.T) {
	cfg := plainConfig()
	cfg.QuantizeEnabled = true
	cfg.QuantizeGrid = 0.25 // 0.125s at 120 BPM

	p := Prepare(Sequence{{ID: "a", Pitch: "C4", Start: 0.13, Dur: 0.2, Vel: 0.5}}, Bounds{0, 2}, cfg)
	require.Len(t, p.Notes, 1)
	assert.InDelta(t, 0.125, p.Notes[0].Start, 1e-9)
	// Duration snaps to half the start grid
	assert.InDelta(t, 0.1875, p.Notes[0].Dur, 1e-9)
}

func TestPrepareQuantizeKeepsShortNotesAudible(t *testing.T) {
	cfg := plainConfig()
	cfg.QuantizeEnabled = true
	cfg.QuantizeGrid = 0.25

	p := Prepare(Sequence{{Start: 0.5, Dur: 0.02}}, Bounds{0, 2}, cfg)
	// round(0.02/0.0625) = 0, floored to the minimum, then dropped at the gate
	assert.Empty(t, p.Notes)
	assert.Equal(t, 1, p.Dropped)
}

func TestConvertTempoIsLinear(t *testing.T) {
	notes := []NoteEvent{
		{Start: 0, Dur: 0.5},
		{Start: 1, Dur: 1},
		{Start: 2.75, Dur: 0.3},
		{Start: 3.9, Dur: 0.08},
	}

	faster := convertTempo(notes, 2)
	for i, n := range faster {
		assert.InDelta(t, notes[i].Start/2, n.Start, 1e-12)
		assert.InDelta(t, notes[i].Dur/2, n.Dur, 1e-12)
	}

	back := convertTempo(faster, 0.5)
	for i, n := range back {
		assert.InDelta(t, notes[i].Start, n.Start, 1e-9)
		assert.InDelta(t, notes[i].Dur, n.Dur, 1e-9)
	}
}

func TestPrepareTempoRoundTrip(t *testing.T) {
	seq := Sequence{
		{ID: "1", Pitch: "C4", Start: 1, Dur: 0.5, Vel: 0.5},
		{ID: "2", Pitch: "E4", Start: 2.5, Dur: 1, Vel: 0.5},
		{ID: "3", Pitch: "G4", Start: 3.7, Dur: 0.2, Vel: 0.5},
	}

	up := plainConfig()
	up.OriginalTempo, up.TargetTempo = 120, 240
	half := Prepare(seq, Bounds{0, 8}, up)
	require.Len(t, half.Notes, 3)
	assert.InDelta(t, 4.0, half.LoopDuration, 1e-9)
	for i, n := range half.Notes {
		assert.InDelta(t, seq[i].Start/2, n.Start, 1e-9)
		assert.InDelta(t, seq[i].Dur/2, n.Dur, 1e-9)
	}

	down := plainConfig()
	down.OriginalTempo, down.TargetTempo = 240, 120
	restored := Prepare(Sequence(half.Notes), Bounds{0, 4}, down)
	require.Len(t, restored.Notes, 3)
	for i, n := range restored.Notes {
		assert.InDelta(t, seq[i].Start, n.Start, 1e-9)
		assert.InDelta(t, seq[i].Dur, n.Dur, 1e-9)
	}
}

func TestPrepareDropsBelowMinimumDuration(t *testing.T) {
	p := Prepare(Sequence{{Start: 0, Dur: 0.005}}, Bounds{0, 4}, plainConfig())
	assert.Len(t, p.Notes, 0)
	assert.Equal(t, 1, p.Dropped)
}

func TestPrepareNoSurvivorBelowFloor(t *testing.T) {
	cfg := plainConfig()
	cfg.QuantizeEnabled = true
	cfg.QuantizeGrid = 0.125
	cfg.SwingAmount = 0.7
	cfg.CrossfadeEnabled = true
	cfg.CrossfadeDuration = 0.1
	cfg.TargetTempo = 150

	seq := Sequence{
		{Start: 0, Dur: 0.001},
		{Start: 0.2, Dur: 0.011},
		{Start: 1.0, Dur: 0.3},
		{Start: 1.95, Dur: 0.5},
		{Start: 1.99, Dur: 0.2},
		{Start: 3.5, Dur: 0.7},
	}
	p := Prepare(seq, Bounds{0, 2}, cfg)
	for _, n := range p.Notes {
		assert.Greater(t, n.Dur, MinAudibleDur)
	}
	assert.Equal(t, len(p.Notes)+p.Dropped, 5) // one note lies outside the bounds
}

func TestPrepareClip(t *testing.T) {
	seq := Sequence{
		{ID: "before", Start: 0.2, Dur: 0.5},  // ends before bounds
		{ID: "straddle", Start: 0.8, Dur: 0.5}, // starts before bounds
		{ID: "inside", Start: 1.5, Dur: 0.5},
		{ID: "tail", Start: 2.5, Dur: 2.0}, // runs past the end
		{ID: "after", Start: 3.0, Dur: 0.5},
	}
	p := Prepare(seq, Bounds{1, 3}, plainConfig())
	require.Len(t, p.Notes, 3)

	assert.Equal(t, "straddle", p.Notes[0].ID)
	assert.InDelta(t, 0, p.Notes[0].Start, 1e-9)
	assert.InDelta(t, 0.3, p.Notes[0].Dur, 1e-9)

	assert.Equal(t, "inside", p.Notes[1].ID)
	assert.InDelta(t, 0.5, p.Notes[1].Start, 1e-9)

	assert.Equal(t, "tail", p.Notes[2].ID)
	assert.InDelta(t, 1.5, p.Notes[2].Start, 1e-9)
	assert.InDelta(t, 0.5, p.Notes[2].Dur, 1e-9)
	assert.InDelta(t, 2.0, p.LoopDuration, 1e-9)
}

func TestPrepareSwingShiftsOddGridSlots(t *testing.T) {
	cfg := plainConfig()
	cfg.QuantizeEnabled = true
	cfg.QuantizeGrid = 0.25 // 0.125s
	cfg.SwingAmount = 1

	seq := Sequence{
		{ID: "0", Start: 0, Dur: 0.1},
		{ID: "1", Start: 0.125, Dur: 0.1},
		{ID: "2", Start: 0.25, Dur: 0.1},
		{ID: "3", Start: 0.375, Dur: 0.1},
	}
	p := Prepare(seq, Bounds{0, 2}, cfg)
	require.Len(t, p.Notes, 4)

	shift := 0.125 * 1 * 0.1
	assert.InDelta(t, 0, p.Notes[0].Start, 1e-9)
	assert.InDelta(t, 0.125+shift, p.Notes[1].Start, 1e-9)
	assert.InDelta(t, 0.25, p.Notes[2].Start, 1e-9)
	assert.InDelta(t, 0.375+shift, p.Notes[3].Start, 1e-9)
}

func TestPrepareSwingDampingIsConfigurable(t *testing.T) {
	cfg := plainConfig()
	cfg.QuantizeGrid = 0.5 // 0.25s
	cfg.SwingAmount = 0.5
	cfg.SwingDamping = 0.2

	p := Prepare(Sequence{{Start: 0.25, Dur: 0.1}}, Bounds{0, 2}, cfg)
	require.Len(t, p.Notes, 1)
	assert.InDelta(t, 0.25+0.25*0.5*0.2, p.Notes[0].Start, 1e-9)
}

func TestPrepareCrossfadeTrim(t *testing.T) {
	cfg := plainConfig()
	cfg.CrossfadeEnabled = true
	cfg.CrossfadeDuration = 0.25

	seq := Sequence{
		{ID: "early", Start: 0.5, Dur: 0.5},
		{ID: "long", Start: 1.5, Dur: 0.5},
		{ID: "in-fade", Start: 1.9, Dur: 0.1},
	}
	p := Prepare(seq, Bounds{0, 2}, cfg)
	require.Len(t, p.Notes, 2)
	assert.InDelta(t, 0.5, p.Notes[0].Dur, 1e-9)
	assert.Equal(t, "long", p.Notes[1].ID)
	assert.InDelta(t, 0.25, p.Notes[1].Dur, 1e-9)
	assert.Equal(t, 1, p.Dropped)
}

func TestPrepareDoesNotMutateInput(t *testing.T) {
	seq := Sequence{{ID: "a", Start: 1.13, Dur: 0.4, Vel: 0.9}}
	orig := seq.Clone()

	cfg := plainConfig()
	cfg.QuantizeEnabled = true
	cfg.SwingAmount = 1
	cfg.TargetTempo = 90
	Prepare(seq, Bounds{1, 3}, cfg)

	assert.Equal(t, orig, seq)
}

func TestPrepareIsDeterministic(t *testing.T) {
	seq := Sequence{
		{Start: 0.11, Dur: 0.3},
		{Start: 0.61, Dur: 0.2},
		{Start: 1.37, Dur: 0.6},
	}
	cfg := plainConfig()
	cfg.QuantizeEnabled = true
	cfg.SwingAmount = 0.4
	cfg.CrossfadeEnabled = true
	cfg.TargetTempo = 133

	assert.Equal(t, Prepare(seq, Bounds{0, 2}, cfg), Prepare(seq, Bounds{0, 2}, cfg))
}
