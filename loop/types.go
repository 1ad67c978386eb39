// Package loop plays a recorded note sequence back as a seamless repeating loop
// against a shared transport clock.
//
// A Controller prepares one iteration of the loop (clip, tempo conversion,
// quantize, swing, crossfade trim), then keeps a bounded window of future
// iterations registered with the transport until Stop.
package loop

import (
	"math"

	"go-loop/transport"
)

// MinAudibleDur is the shortest note duration (seconds) that survives into scheduling
const MinAudibleDur = 0.01

// Velocity bounds applied before notes reach the engine
const (
	VelocityFloor   = 0.1
	VelocityCeiling = 0.8
)

// Defaults
const (
	DefaultMaxLoopDuration = 30.0
	DefaultWindowSize      = 2
	DefaultTempo           = 120.0
	DefaultSwingDamping    = 0.1
	DefaultDuckLevel       = 0.3
	Infinite               = -1
)

// NoteEvent is a single timed note. Times are seconds, relative to the loop.
type NoteEvent struct {
	ID    string  `json:"id" yaml:"id"`
	Pitch string  `json:"pitch" yaml:"pitch"`
	Start float64 `json:"start" yaml:"start"`
	Dur   float64 `json:"dur" yaml:"dur"`
	Vel   float64 `json:"vel" yaml:"vel"`
}

// End returns Start+Dur
func (n NoteEvent) End() float64 {
	return n.Start + n.Dur
}

// Sequence is an unordered collection of notes, owned by the caller
type Sequence []NoteEvent

// Clone returns an independent copy
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	out := make(Sequence, len(s))
	copy(out, s)
	return out
}

// Bounds is the [Start, End) window of the source sequence that repeats
type Bounds struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End-Start
func (b Bounds) Duration() float64 {
	return b.End - b.Start
}

// Valid reports whether End > Start
func (b Bounds) Valid() bool {
	return b.End > b.Start
}

// Config holds everything that shapes a loop session
type Config struct {
	Enabled           bool    `json:"enabled"`
	Start             float64 `json:"start"`
	End               float64 `json:"end"`
	MaxLoops          int     `json:"maxLoops"` // -1 = infinite
	CrossfadeEnabled  bool    `json:"crossfadeEnabled"`
	CrossfadeDuration float64 `json:"crossfadeDuration"`
	FadeInDuration    float64 `json:"fadeInDuration"`
	FadeOutDuration   float64 `json:"fadeOutDuration"`
	MaxLoopDuration   float64 `json:"maxLoopDuration"`
	QuantizeEnabled   bool    `json:"quantizeEnabled"`
	QuantizeGrid      float64 `json:"quantizeGrid"` // fraction of a beat
	SwingAmount       float64 `json:"swingAmount"`  // 0..1
	OriginalTempo     float64 `json:"originalTempo"`
	TargetTempo       float64 `json:"targetTempo"`

	// Tuning
	SwingDamping float64 `json:"swingDamping"`
	DuckLevel    float64 `json:"duckLevel"`
	WindowSize   int     `json:"windowSize"`
}

// DefaultConfig returns an enabled, infinite loop config at 120 BPM
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		MaxLoops:          Infinite,
		CrossfadeDuration: 0.05,
		MaxLoopDuration:   DefaultMaxLoopDuration,
		QuantizeGrid:      0.25,
		OriginalTempo:     DefaultTempo,
		TargetTempo:       DefaultTempo,
		SwingDamping:      DefaultSwingDamping,
		DuckLevel:         DefaultDuckLevel,
		WindowSize:        DefaultWindowSize,
	}
}

// Bounds returns the configured loop bounds
func (c Config) Bounds() Bounds {
	return Bounds{Start: c.Start, End: c.End}
}

// TempoRatio is TargetTempo/OriginalTempo, always derived from its two sources
func (c Config) TempoRatio() float64 {
	if c.OriginalTempo <= 0 || c.TargetTempo <= 0 {
		return 1
	}
	return c.TargetTempo / c.OriginalTempo
}

// BeatDur is the length of one beat at the target tempo
func (c Config) BeatDur() float64 {
	return beatDur(c.TargetTempo)
}

// Infinite reports whether the loop repeats until stopped
func (c Config) Infinite() bool {
	return c.MaxLoops <= 0
}

// normalized fills zero tuning values with defaults and clamps ranges
func (c Config) normalized() Config {
	if c.MaxLoopDuration <= 0 {
		c.MaxLoopDuration = DefaultMaxLoopDuration
	}
	if c.OriginalTempo <= 0 {
		c.OriginalTempo = DefaultTempo
	}
	if c.TargetTempo <= 0 {
		c.TargetTempo = c.OriginalTempo
	}
	if c.SwingDamping <= 0 {
		c.SwingDamping = DefaultSwingDamping
	}
	if c.DuckLevel <= 0 || c.DuckLevel > 1 {
		c.DuckLevel = DefaultDuckLevel
	}
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.MaxLoops == 0 {
		c.MaxLoops = Infinite
	}
	c.SwingAmount = clamp(c.SwingAmount, 0, 1)
	c.CrossfadeDuration = math.Max(0, c.CrossfadeDuration)
	c.FadeInDuration = math.Max(0, c.FadeInDuration)
	c.FadeOutDuration = math.Max(0, c.FadeOutDuration)
	if c.QuantizeGrid < 0 {
		c.QuantizeGrid = 0
	}
	return c
}

// Transport is the clock collaborator: time-stamped callback delivery and a monotonic now
type Transport interface {
	Schedule(at float64, fn transport.Callback) transport.Handle
	Cancel(h transport.Handle) error
	Now() float64
}

// Gain is a ramped gain stage in the audio engine
type Gain interface {
	// RampTo moves linearly to value over duration seconds, starting at transport time from
	RampTo(value, duration, from float64)
}

// Engine produces sound for triggered notes
type Engine interface {
	TriggerNote(pitch string, dur, at, vel float64)
	// Gain returns the engine's output gain stage (nil if it has none)
	Gain() Gain
}

// releaser is implemented by engines that can cut notes still sounding
type releaser interface {
	ReleaseAll()
}

// availability is implemented by transports that can go away
type availability interface {
	Available() bool
}

func beatDur(tempo float64) float64 {
	if tempo <= 0 {
		tempo = DefaultTempo
	}
	return 60 / tempo
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// clampVelocity keeps velocities inside the safety window
func clampVelocity(v float64) float64 {
	return clamp(v, VelocityFloor, VelocityCeiling)
}
