package midi

import (
	"math"
	"sync"

	"go-loop/debug"
	"go-loop/loop"
	"go-loop/transport"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Sender writes one message to an output port (see gomidi.SendTo)
type Sender func(gomidi.Message) error

// Scheduler is the transport the engine uses for note-offs and gain steps
type Scheduler interface {
	Schedule(at float64, fn transport.Callback) transport.Handle
	Cancel(h transport.Handle) error
	Now() float64
}

// CC numbers
const (
	ccVolume      uint8 = 7
	ccAllNotesOff uint8 = 123
)

// Engine turns loop triggers into MIDI note on/off pairs on one channel.
// Note-offs are scheduled on the same transport as the loop so they line up
// with the triggers that produced them.
type Engine struct {
	mu      sync.Mutex
	send    Sender
	sched   Scheduler
	channel uint8 // 0-15

	held    map[uint8]int // note -> active note-ons
	pending map[transport.Handle]struct{}
	gain    *Gain
	closed  bool
}

// NewEngine creates an engine sending on channel (1-16)
func NewEngine(send Sender, sched Scheduler, channel int) *Engine {
	if channel < 1 || channel > 16 {
		channel = 1
	}
	e := &Engine{
		send:    send,
		sched:   sched,
		channel: uint8(channel - 1),
		held:    make(map[uint8]int),
		pending: make(map[transport.Handle]struct{}),
	}
	e.gain = &Gain{engine: e, level: 1, steps: make(map[transport.Handle]float64)}
	return e
}

// Velocity converts a 0..1 velocity to MIDI 1..127
func Velocity(v float64) uint8 {
	n := math.Round(math.Max(0, math.Min(1, v)) * 127)
	if n < 1 {
		n = 1
	}
	return uint8(n)
}

// TriggerNote sounds pitch at transport time at for dur seconds
func (e *Engine) TriggerNote(pitch string, dur, at, vel float64) {
	note, err := ParsePitch(pitch)
	if err != nil {
		debug.Warn("midi", "trigger skipped: %v", err)
		return
	}
	velocity := Velocity(vel)

	if at > e.sched.Now() {
		e.schedule(at, func(float64) { e.noteOn(note, velocity) })
	} else {
		e.noteOn(note, velocity)
	}
	e.schedule(at+dur, func(float64) { e.noteOff(note) })
}

func (e *Engine) noteOn(note, velocity uint8) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.held[note]++
	e.mu.Unlock()

	e.write(gomidi.NoteOn(e.channel, note, velocity))
	debug.LogEvery(50, "midi", "note on %s vel=%d", PitchName(note), velocity)
}

// noteOff releases one note-on; the message is sent when the last overlapping one ends
func (e *Engine) noteOff(note uint8) {
	e.mu.Lock()
	n := e.held[note]
	if n == 0 || e.closed {
		e.mu.Unlock()
		return
	}
	if n > 1 {
		e.held[note] = n - 1
		e.mu.Unlock()
		return
	}
	delete(e.held, note)
	e.mu.Unlock()

	e.write(gomidi.NoteOff(e.channel, note))
}

// schedule registers fn and tracks its handle so ReleaseAll can drop it
func (e *Engine) schedule(at float64, fn transport.Callback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	var h transport.Handle
	h = e.sched.Schedule(at, func(t float64) {
		e.mu.Lock()
		delete(e.pending, h)
		e.mu.Unlock()
		fn(t)
	})
	if h != 0 {
		e.pending[h] = struct{}{}
	}
}

func (e *Engine) write(msg gomidi.Message) {
	if e.send == nil {
		return
	}
	if err := e.send(msg); err != nil {
		debug.Error("midi", err, "send %s", msg)
	}
}

// Gain returns the channel-volume gain stage
func (e *Engine) Gain() loop.Gain {
	return e.gain
}

// Held returns the number of distinct notes currently sounding
func (e *Engine) Held() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.held)
}

// ReleaseAll cancels pending note events and silences every held note
func (e *Engine) ReleaseAll() {
	e.mu.Lock()
	handles := make([]transport.Handle, 0, len(e.pending))
	for h := range e.pending {
		handles = append(handles, h)
	}
	e.pending = make(map[transport.Handle]struct{})
	notes := make([]uint8, 0, len(e.held))
	for n := range e.held {
		notes = append(notes, n)
	}
	e.held = make(map[uint8]int)
	e.mu.Unlock()

	for _, h := range handles {
		// Already fired is fine here
		_ = e.sched.Cancel(h)
	}
	for _, n := range notes {
		e.write(gomidi.NoteOff(e.channel, n))
	}
	debug.Log("midi", "released %d notes, dropped %d pending events", len(notes), len(handles))
}

// Close releases everything, sends All Notes Off and stops accepting triggers
func (e *Engine) Close() error {
	e.ReleaseAll()
	e.gain.cancelAfter(math.Inf(-1))

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.write(gomidi.ControlChange(e.channel, ccAllNotesOff, 0))
	return nil
}

// gainStep is the spacing of CC 7 messages in a ramp
const gainStep = 0.02

// Gain ramps MIDI channel volume (CC 7) on the transport timeline
type Gain struct {
	engine *Engine

	mu    sync.Mutex
	level float64                      // value at the end of the last planned ramp
	plan  []gainPoint                  // ramp anchors and steps, in insertion order
	steps map[transport.Handle]float64 // pending step -> time
}

type gainPoint struct {
	at, v float64
}

// RampTo moves linearly to value over duration, starting at from and from the
// level the gain has at that time. Steps of an earlier ramp later than from are
// superseded.
func (g *Gain) RampTo(value, duration, from float64) {
	value = math.Max(0, math.Min(1, value))

	g.mu.Lock()
	start := g.levelAt(from)
	g.level = value
	g.mu.Unlock()

	g.cancelAfter(from)

	g.mu.Lock()
	g.prune(g.engine.sched.Now())
	g.plan = append(g.plan, gainPoint{at: from, v: start})
	g.mu.Unlock()

	n := 1
	if duration > 0 {
		n = int(math.Ceil(duration/gainStep - 1e-9))
	}
	for i := 1; i <= n; i++ {
		frac := float64(i) / float64(n)
		at := from + duration*frac
		if duration <= 0 {
			at = from
		}
		g.step(at, start+(value-start)*frac)
	}
	debug.Log("midi", "gain ramp %.2f -> %.2f over %.3fs at %.3f", start, value, duration, from)
}

// Level returns the level the gain is heading towards
func (g *Gain) Level() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}

// levelAt interpolates the planned curve at t. Of points sharing a time the
// latest planned wins. Caller holds g.mu.
func (g *Gain) levelAt(t float64) float64 {
	var prev, next gainPoint
	hasPrev, hasNext := false, false
	for _, p := range g.plan {
		if p.at <= t {
			if !hasPrev || p.at >= prev.at {
				prev, hasPrev = p, true
			}
			continue
		}
		if !hasNext || p.at < next.at {
			next, hasNext = p, true
		}
	}
	switch {
	case !hasPrev && !hasNext:
		return g.level
	case !hasPrev:
		return next.v
	case !hasNext || t <= prev.at:
		return prev.v
	}
	return prev.v + (next.v-prev.v)*(t-prev.at)/(next.at-prev.at)
}

// prune drops points before now, keeping the latest of them. Caller holds g.mu.
func (g *Gain) prune(now float64) {
	keep := -1
	for i, p := range g.plan {
		if p.at <= now && (keep < 0 || p.at >= g.plan[keep].at) {
			keep = i
		}
	}
	out := g.plan[:0]
	for i, p := range g.plan {
		if i == keep || p.at > now {
			out = append(out, p)
		}
	}
	g.plan = out
}

func (g *Gain) step(at, v float64) {
	msg := gomidi.ControlChange(g.engine.channel, ccVolume, uint8(math.Round(v*127)))
	sched := g.engine.sched

	g.mu.Lock()
	g.plan = append(g.plan, gainPoint{at: at, v: v})
	if at <= sched.Now() {
		g.mu.Unlock()
		g.engine.write(msg)
		return
	}
	defer g.mu.Unlock()

	var h transport.Handle
	h = sched.Schedule(at, func(float64) {
		g.mu.Lock()
		delete(g.steps, h)
		g.mu.Unlock()
		g.engine.write(msg)
	})
	if h != 0 {
		g.steps[h] = at
	}
}

// cancelAfter drops pending steps scheduled strictly after t
func (g *Gain) cancelAfter(t float64) {
	g.mu.Lock()
	var drop []transport.Handle
	for h, at := range g.steps {
		if at > t {
			drop = append(drop, h)
			delete(g.steps, h)
		}
	}
	kept := g.plan[:0]
	for _, p := range g.plan {
		if p.at <= t {
			kept = append(kept, p)
		}
	}
	g.plan = kept
	g.mu.Unlock()

	for _, h := range drop {
		_ = g.engine.sched.Cancel(h)
	}
}
