package loop

import (
	"math"

	"go-loop/debug"
)

// Prepared is one concrete iteration of the loop, ready to schedule
type Prepared struct {
	Notes        []NoteEvent
	LoopDuration float64 // seconds per iteration at the target tempo
	Dropped      int     // notes removed by the final audibility gate
}

// Empty reports whether there is nothing to schedule
func (p Prepared) Empty() bool {
	return len(p.Notes) == 0
}

// Prepare turns a raw sequence into one iteration of the loop.
//
// Stages run in order, each producing a new slice: clip to bounds, tempo
// conversion, quantize, swing, crossfade trim. Notes whose duration ends up at or
// below MinAudibleDur are dropped at the end. The input is never modified.
func Prepare(seq Sequence, b Bounds, cfg Config) Prepared {
	cfg = cfg.normalized()
	ratio := cfg.TempoRatio()
	loopDur := b.Duration() / ratio

	notes := clip(seq, b)
	notes = convertTempo(notes, ratio)
	if cfg.QuantizeEnabled {
		notes = quantize(notes, cfg.BeatDur(), cfg.QuantizeGrid)
	}
	if cfg.SwingAmount > 0 {
		notes = swing(notes, cfg.BeatDur(), cfg.QuantizeGrid, cfg.SwingAmount, cfg.SwingDamping)
	}
	if cfg.CrossfadeEnabled {
		notes = trimForCrossfade(notes, loopDur, cfg.CrossfadeDuration)
	}

	kept, dropped := dropInaudible(notes)
	if dropped > 0 {
		debug.Log("xform", "dropped %d inaudible notes", dropped)
	}
	debug.Log("xform", "prepared %d/%d notes, loop %.3fs ratio %.3f", len(kept), len(seq), loopDur, ratio)

	return Prepared{Notes: kept, LoopDuration: loopDur, Dropped: dropped}
}

// clip keeps notes overlapping [b.Start, b.End) and re-origins them to the loop start
func clip(seq Sequence, b Bounds) []NoteEvent {
	out := make([]NoteEvent, 0, len(seq))
	for _, n := range seq {
		if n.Start >= b.End || n.End() <= b.Start {
			continue
		}
		start := math.Max(n.Start, b.Start) - b.Start
		end := math.Min(n.End(), b.End) - b.Start
		n.Start = start
		n.Dur = floorDur(end - start)
		out = append(out, n)
	}
	return out
}

// convertTempo rescales recorded timing to the target tempo
func convertTempo(notes []NoteEvent, ratio float64) []NoteEvent {
	if ratio == 1 {
		return notes
	}
	out := make([]NoteEvent, len(notes))
	for i, n := range notes {
		n.Start /= ratio
		n.Dur = floorDur(n.Dur / ratio)
		out[i] = n
	}
	return out
}

// quantize snaps starts to the grid and durations to half the grid
func quantize(notes []NoteEvent, beat, grid float64) []NoteEvent {
	gridDur := beat * grid
	if gridDur <= 0 {
		return notes
	}
	half := gridDur / 2
	out := make([]NoteEvent, len(notes))
	for i, n := range notes {
		n.Start = math.Round(n.Start/gridDur) * gridDur
		n.Dur = math.Max(MinAudibleDur, math.Round(n.Dur/half)*half)
		out[i] = n
	}
	return out
}

// swing delays notes on odd grid positions by gridDur*amount*damping
func swing(notes []NoteEvent, beat, grid, amount, damping float64) []NoteEvent {
	gridDur := beat * grid
	if gridDur <= 0 {
		return notes
	}
	shift := gridDur * amount * damping
	out := make([]NoteEvent, len(notes))
	for i, n := range notes {
		// Tolerance so quantized starts land in their own slot
		slot := int64(math.Floor(n.Start/gridDur + 1e-9))
		if slot%2 != 0 {
			n.Start += shift
		}
		out[i] = n
	}
	return out
}

// trimForCrossfade ends notes before the seam fade begins
func trimForCrossfade(notes []NoteEvent, loopDur, xfade float64) []NoteEvent {
	boundary := loopDur - xfade
	out := make([]NoteEvent, len(notes))
	for i, n := range notes {
		if n.End() > boundary {
			n.Dur = floorDur(boundary - n.Start)
		}
		out[i] = n
	}
	return out
}

// dropInaudible removes click-length stubs, including notes sitting exactly on the floor
func dropInaudible(notes []NoteEvent) ([]NoteEvent, int) {
	out := make([]NoteEvent, 0, len(notes))
	for _, n := range notes {
		if n.Dur <= MinAudibleDur {
			continue
		}
		out = append(out, n)
	}
	return out, len(notes) - len(out)
}

func floorDur(d float64) float64 {
	return math.Max(MinAudibleDur, d)
}
