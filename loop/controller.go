package loop

import (
	"fmt"
	"math"
	"sync"

	"go-loop/debug"
)

// State is the controller lifecycle state
type State int

const (
	Idle State = iota
	Preparing
	Looping
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Looping:
		return "looping"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a snapshot for UI display
type Status struct {
	Enabled          bool
	Active           bool
	State            State
	Start            float64
	End              float64
	Duration         float64
	Iteration        int
	Phase            float64 // position within the current iteration, 0..1
	MaxLoops         int
	CrossfadeEnabled bool
	LoopDuration     float64 // per-iteration length at the target tempo (0 when idle)
	Outstanding      int
	Notes            int
}

// Controller owns loop configuration and the start/stop lifecycle.
// All methods are safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	cfg       Config
	transport Transport
	engine    Engine
	crossfade *Crossfade

	state    State
	session  *Session
	sessions uint64

	observer   func(Advisory)
	advisories map[AdvisoryKind]int
	lastDrop   int
}

// Option configures a Controller
type Option func(*Controller)

// WithObserver receives every advisory as it is raised. Called with the
// controller lock held; it must not call back into the controller.
func WithObserver(fn func(Advisory)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// NewController creates an idle controller. tr or eng may be nil, in which case
// Start fails with ErrTransportUnavailable.
func NewController(tr Transport, eng Engine, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:        cfg.normalized(),
		transport:  tr,
		engine:     eng,
		advisories: make(map[AdvisoryKind]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns a copy of the current configuration
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// State returns the lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the live session (nil when idle)
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// AdvisoryCount returns how many advisories of kind have been raised
func (c *Controller) AdvisoryCount(kind AdvisoryKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advisories[kind]
}

// LastDropped returns how many notes the last Start dropped as inaudible
func (c *Controller) LastDropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDrop
}

// Start prepares seq under cfg and begins looping.
//
// Disabled configs and sequences that prepare to nothing are silent no-ops, as is
// Start while a session is running. Only a missing transport or engine is an error.
func (c *Controller) Start(seq Sequence, cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		debug.Log("loop", "start ignored while %s", c.state)
		return nil
	}

	cfg = cfg.normalized()
	c.cfg = cfg
	if !cfg.Enabled {
		debug.Log("loop", "start ignored, looping disabled")
		return nil
	}
	if !c.transportAvailable() {
		debug.Warn("loop", "start failed: transport unavailable")
		return ErrTransportUnavailable
	}

	c.state = Preparing
	prepared, bounds, ok := c.prepare(seq)
	if !ok {
		c.state = Idle
		return nil
	}
	c.cfg.Start, c.cfg.End = bounds.Start, bounds.End

	c.sessions++
	s := newSession(c.sessions, c.transport.Now(), prepared, c.cfg)
	c.session = s
	c.crossfade = NewCrossfade(c.engine.Gain(), c.cfg.DuckLevel)
	c.state = Looping

	sched := NewIterationScheduler(c.transport, c.engine, c.crossfade)
	NewLookahead(sched, c.transport, c.cfg.WindowSize).Arm(prepared, s, 0)
	if !c.cfg.Infinite() {
		end := s.origin + float64(c.cfg.MaxLoops)*prepared.LoopDuration
		s.schedule(c.transport, end, func(float64) {
			c.autoStop(s)
		})
	}

	debug.Log("loop", "session %d looping %d notes, %.3fs per iteration, maxLoops=%d",
		s.id, len(prepared.Notes), prepared.LoopDuration, c.cfg.MaxLoops)
	return nil
}

// prepare resolves bounds and runs the transform pipeline
func (c *Controller) prepare(seq Sequence) (Prepared, Bounds, bool) {
	if len(seq) == 0 {
		c.advise(newAdvisory(AdvisoryEmptySequence, "no notes to loop"))
		return Prepared{}, Bounds{}, false
	}

	bounds := c.cfg.Bounds()
	if !bounds.Valid() {
		if bounds != (Bounds{}) {
			c.advise(newAdvisory(AdvisoryInvalidBounds, "end %.3f <= start %.3f, detecting from notes", bounds.End, bounds.Start))
		}
		d, err := DetectBounds(seq, c.cfg.TargetTempo, c.cfg.MaxLoopDuration)
		if err != nil {
			c.advise(newAdvisory(AdvisoryEmptySequence, "bounds detection: %v", err))
			return Prepared{}, Bounds{}, false
		}
		if d.Capped {
			c.advise(newAdvisory(AdvisoryDurationCapped, "detected loop capped at %.3fs", c.cfg.MaxLoopDuration))
		}
		bounds = d.Bounds
	} else if bounds.Duration() > c.cfg.MaxLoopDuration {
		bounds.End = bounds.Start + c.cfg.MaxLoopDuration
		c.advise(newAdvisory(AdvisoryDurationCapped, "loop end clamped to %.3f", bounds.End))
	}

	prepared := Prepare(seq.Clone(), bounds, c.cfg)
	c.lastDrop = prepared.Dropped
	if prepared.Dropped > 0 {
		c.advise(newAdvisory(AdvisoryDroppedNotes, "%d notes below %.2fs dropped", prepared.Dropped, MinAudibleDur))
	}
	if prepared.Empty() || prepared.LoopDuration <= MinAudibleDur {
		c.advise(newAdvisory(AdvisoryEmptySequence, "nothing audible inside [%.3f, %.3f)", bounds.Start, bounds.End))
		return Prepared{}, Bounds{}, false
	}
	return prepared, bounds, true
}

// Stop begins teardown. Triggers already due go silent immediately; handles are
// cancelled after the fade-out. Never blocks. Stop while idle or stopping is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Looping || c.session == nil {
		debug.Log("loop", "stop ignored while %s", c.state)
		return
	}
	c.beginStop(c.session)
}

func (c *Controller) beginStop(s *Session) {
	c.state = Stopping
	s.stopping.Store(true)
	s.looping.Store(false)

	// Drop the re-arm first so nothing new races the sweep
	if err := s.cancelLookahead(c.transport); err != nil {
		c.advise(Advisory{Kind: AdvisoryCancelFailed, Detail: err.Error(), Err: err})
	}

	fade := c.cfg.FadeOutDuration
	if fade <= 0 {
		c.finishStop(s)
		return
	}

	now := c.transport.Now()
	c.crossfade.FadeToSilence(now, fade)
	if _, ok := s.schedule(c.transport, now+fade, func(float64) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.session == s {
			c.finishStop(s)
		}
	}); !ok {
		c.finishStop(s)
		return
	}
	debug.Log("loop", "session %d stopping, fade %.3fs", s.id, fade)
}

// finishStop cancels everything the session still holds and returns to Idle
func (c *Controller) finishStop(s *Session) {
	// A teardown racing a late re-arm
	if err := s.cancelLookahead(c.transport); err != nil {
		c.advise(Advisory{Kind: AdvisoryCancelFailed, Detail: err.Error(), Err: err})
	}

	cancelled, err := s.close(c.transport)
	if err != nil {
		c.advise(Advisory{Kind: AdvisoryCancelFailed, Detail: err.Error(), Err: err})
		debug.Error("loop", err, "session %d teardown", s.id)
	}
	if r, ok := c.engine.(releaser); ok {
		r.ReleaseAll()
	}
	c.crossfade.RestoreUnity(c.transport.Now())

	c.session = nil
	c.state = Idle
	debug.Log("loop", "session %d stopped, cancelled %d of %d handles", s.id, cancelled, s.Issued())
}

func (c *Controller) autoStop(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s || c.state != Looping {
		return
	}
	debug.Log("loop", "session %d reached maxLoops=%d", s.id, s.cfg.MaxLoops)
	c.beginStop(s)
}

// Status reports the current configuration and playback position
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Enabled:          c.cfg.Enabled,
		Active:           c.state == Looping,
		State:            c.state,
		Start:            c.cfg.Start,
		End:              c.cfg.End,
		Duration:         c.cfg.End - c.cfg.Start,
		MaxLoops:         c.cfg.MaxLoops,
		CrossfadeEnabled: c.cfg.CrossfadeEnabled,
	}
	if s := c.session; s != nil {
		st.LoopDuration = s.prepared.LoopDuration
		st.Notes = len(s.prepared.Notes)
		st.Outstanding = s.Outstanding()
		now := c.transport.Now()
		st.Iteration = iterationAt(now, s)
		st.Phase = phaseAt(now, s)
	}
	return st
}

func iterationAt(now float64, s *Session) int {
	if s.prepared.LoopDuration <= 0 || now < s.origin {
		return 0
	}
	it := int(math.Floor((now - s.origin) / s.prepared.LoopDuration))
	if !s.cfg.Infinite() && it > s.cfg.MaxLoops-1 {
		it = s.cfg.MaxLoops - 1
	}
	return it
}

func phaseAt(now float64, s *Session) float64 {
	d := s.prepared.LoopDuration
	if d <= 0 || now < s.origin {
		return 0
	}
	if !s.cfg.Infinite() && now >= s.origin+float64(s.cfg.MaxLoops)*d {
		return 1
	}
	_, frac := math.Modf((now - s.origin) / d)
	return frac
}

// SetLoopBounds sets explicit bounds. end <= start is corrected to a two-beat
// loop; loops longer than MaxLoopDuration are clamped. Applies at the next Start.
func (c *Controller) SetLoopBounds(start, end float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start = math.Max(0, start)
	if end <= start {
		c.advise(newAdvisory(AdvisoryInvalidBounds, "end %.3f <= start %.3f", end, start))
		end = start + minLoopBeats*c.cfg.BeatDur()
	}
	if end-start > c.cfg.MaxLoopDuration {
		end = start + c.cfg.MaxLoopDuration
		c.advise(newAdvisory(AdvisoryDurationCapped, "loop end clamped to %.3f", end))
	}
	c.cfg.Start, c.cfg.End = start, end
}

// ClearLoopBounds makes the next Start detect bounds from the sequence
func (c *Controller) ClearLoopBounds() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Start, c.cfg.End = 0, 0
}

// AutoDetectBounds detects bounds for seq, stores and returns them.
// An empty sequence yields (0, 0).
func (c *Controller) AutoDetectBounds(seq Sequence) (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, err := DetectBounds(seq, c.cfg.TargetTempo, c.cfg.MaxLoopDuration)
	if err != nil {
		c.advise(newAdvisory(AdvisoryEmptySequence, "auto-detect: %v", err))
		return 0, 0
	}
	if d.Capped {
		c.advise(newAdvisory(AdvisoryDurationCapped, "detected loop capped at %.3fs", c.cfg.MaxLoopDuration))
	}
	c.cfg.Start, c.cfg.End = d.Start, d.End
	return d.Start, d.End
}

// SetTempoConversion sets the recorded and playback tempos. Non-positive tempos
// are rejected and the previous values kept.
func (c *Controller) SetTempoConversion(original, target float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if original <= 0 || target <= 0 {
		debug.Warn("loop", "tempo conversion %.2f -> %.2f rejected", original, target)
		return
	}
	c.cfg.OriginalTempo = original
	c.cfg.TargetTempo = target
	debug.Log("loop", "tempo %.2f -> %.2f (ratio %.3f)", original, target, c.cfg.TempoRatio())
}

// SetQuantization enables or disables quantizing to grid (fraction of a beat, 0 < grid <= 1)
func (c *Controller) SetQuantization(enabled bool, grid float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if grid > 0 {
		c.cfg.QuantizeGrid = math.Min(grid, 1)
	}
	c.cfg.QuantizeEnabled = enabled && c.cfg.QuantizeGrid > 0
}

// SetSwing sets the swing amount, clamped to [0, 1]
func (c *Controller) SetSwing(amount float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.SwingAmount = clamp(amount, 0, 1)
}

// SetCrossfade enables the seam crossfade
func (c *Controller) SetCrossfade(enabled bool, duration float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.CrossfadeEnabled = enabled
	if duration > 0 {
		c.cfg.CrossfadeDuration = duration
	}
}

// SetFades sets the start fade-in and stop fade-out durations
func (c *Controller) SetFades(in, out float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.FadeInDuration = math.Max(0, in)
	c.cfg.FadeOutDuration = math.Max(0, out)
}

// SetMaxLoops sets the iteration count; n <= 0 loops forever
func (c *Controller) SetMaxLoops(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 {
		n = Infinite
	}
	c.cfg.MaxLoops = n
}

// SetEnabled turns looping on or off for the next Start
func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Enabled = enabled
}

func (c *Controller) transportAvailable() bool {
	if c.transport == nil || c.engine == nil {
		return false
	}
	if a, ok := c.transport.(availability); ok && !a.Available() {
		return false
	}
	return true
}

// advise records and logs a corrected condition. Caller holds c.mu.
func (c *Controller) advise(a Advisory) {
	c.advisories[a.Kind]++
	debug.Warn("loop", "%s", a.Error())
	if c.observer != nil {
		c.observer(a)
	}
}
