package loop

import (
	"sync"

	"go-loop/transport"
)

type trigger struct {
	pitch string
	dur   float64
	at    float64
	vel   float64
}

type ramp struct {
	value    float64
	duration float64
	from     float64
}

// recordingEngine records triggers and gain ramps
type recordingEngine struct {
	mu       sync.Mutex
	triggers []trigger
	gain     *recordingGain
	released int
}

func newRecordingEngine() *recordingEngine {
	return &recordingEngine{gain: &recordingGain{}}
}

func (e *recordingEngine) TriggerNote(pitch string, dur, at, vel float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.triggers = append(e.triggers, trigger{pitch: pitch, dur: dur, at: at, vel: vel})
}

func (e *recordingEngine) Gain() Gain { return e.gain }

func (e *recordingEngine) ReleaseAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released++
}

func (e *recordingEngine) Triggers() []trigger {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]trigger, len(e.triggers))
	copy(out, e.triggers)
	return out
}

type recordingGain struct {
	mu    sync.Mutex
	ramps []ramp
}

func (g *recordingGain) RampTo(value, duration, from float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ramps = append(g.ramps, ramp{value: value, duration: duration, from: from})
}

func (g *recordingGain) Ramps() []ramp {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ramp, len(g.ramps))
	copy(out, g.ramps)
	return out
}

// flakyTransport fails to cancel selected handles
type flakyTransport struct {
	*transport.Manual
	failEvery int
	calls     int
}

func (f *flakyTransport) Cancel(h transport.Handle) error {
	f.calls++
	if f.failEvery > 0 && f.calls%f.failEvery == 0 {
		return transport.ErrUnknownHandle
	}
	return f.Manual.Cancel(h)
}
