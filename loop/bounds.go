package loop

import (
	"math"

	"go-loop/debug"
)

// minLoopBeats is the shortest loop the detector will produce
const minLoopBeats = 2

// Detection is the result of DetectBounds
type Detection struct {
	Bounds
	Extended bool // raised to the two-beat floor
	Capped   bool // truncated to maxLoopDuration
}

// DetectBounds derives beat-aligned loop bounds that cover every note.
//
// Start is floored and end is ceiled to the beat grid at targetTempo, the loop is
// at least two beats long and at most maxLoopDuration. An empty sequence returns
// zero bounds and ErrEmptySequence.
func DetectBounds(seq Sequence, targetTempo, maxLoopDuration float64) (Detection, error) {
	if len(seq) == 0 {
		return Detection{}, ErrEmptySequence
	}
	if maxLoopDuration <= 0 {
		maxLoopDuration = DefaultMaxLoopDuration
	}
	beat := beatDur(targetTempo)

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, n := range seq {
		lo = math.Min(lo, n.Start)
		hi = math.Max(hi, n.End())
	}

	d := Detection{Bounds: Bounds{
		Start: math.Max(0, math.Floor(lo/beat)*beat),
		End:   math.Ceil(hi/beat) * beat,
	}}

	if d.Duration() < minLoopBeats*beat {
		d.End = d.Start + minLoopBeats*beat
		d.Extended = true
	}
	if d.Duration() > maxLoopDuration {
		d.End = d.Start + maxLoopDuration
		d.Capped = true
		debug.Warn("bounds", "detected loop capped to %.3fs", maxLoopDuration)
	}

	debug.Log("bounds", "detected [%.3f, %.3f) from %d notes", d.Start, d.End, len(seq))
	return d, nil
}
