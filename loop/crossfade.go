package loop

import "go-loop/debug"

// Crossfade drives the engine gain around loop seams, start and stop.
// A nil gain makes every call a no-op.
type Crossfade struct {
	gain      Gain
	duckLevel float64
}

// NewCrossfade creates a controller ducking to duckLevel at seams
func NewCrossfade(g Gain, duckLevel float64) *Crossfade {
	if duckLevel <= 0 || duckLevel > 1 {
		duckLevel = DefaultDuckLevel
	}
	return &Crossfade{gain: g, duckLevel: duckLevel}
}

// ScheduleFadeOut ducks to the duck level over the first half of duration, then
// recovers to unity over the second half, both on the transport timeline
func (c *Crossfade) ScheduleFadeOut(at, duration float64) {
	if c.gain == nil || duration <= 0 {
		return
	}
	half := duration / 2
	c.gain.RampTo(c.duckLevel, half, at)
	c.gain.RampTo(1, half, at+half)
	debug.Log("xfade", "seam duck at %.3f over %.3fs", at, duration)
}

// ScheduleFadeIn ramps from silence to unity
func (c *Crossfade) ScheduleFadeIn(at, duration float64) {
	if c.gain == nil || duration <= 0 {
		return
	}
	c.gain.RampTo(0, 0, at)
	c.gain.RampTo(1, duration, at)
	debug.Log("xfade", "fade in at %.3f over %.3fs", at, duration)
}

// FadeToSilence ramps to zero, used when a session stops
func (c *Crossfade) FadeToSilence(at, duration float64) {
	if c.gain == nil {
		return
	}
	c.gain.RampTo(0, duration, at)
	debug.Log("xfade", "fade out at %.3f over %.3fs", at, duration)
}

// RestoreUnity sets the gain back to 1 so the next session starts clean
func (c *Crossfade) RestoreUnity(at float64) {
	if c.gain == nil {
		return
	}
	c.gain.RampTo(1, 0, at)
}
