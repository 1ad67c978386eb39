package loop

import (
	"go-loop/debug"
	"go-loop/transport"
)

// IterationScheduler registers one iteration's notes with the transport
type IterationScheduler struct {
	transport Transport
	engine    Engine
	crossfade *Crossfade
}

// NewIterationScheduler creates a scheduler that triggers notes on eng
func NewIterationScheduler(tr Transport, eng Engine, xf *Crossfade) *IterationScheduler {
	return &IterationScheduler{transport: tr, engine: eng, crossfade: xf}
}

// ScheduleIteration registers every note of p for iteration loopIndex and
// returns the handles issued. Each callback checks the session's stopping flag
// at fire time and stays silent once stop has begun.
func (is *IterationScheduler) ScheduleIteration(p Prepared, loopIndex int, s *Session) []transport.Handle {
	cfg := s.cfg
	base := s.origin + float64(loopIndex)*p.LoopDuration
	handles := make([]transport.Handle, 0, len(p.Notes)+1)

	for _, n := range p.Notes {
		vel := clampVelocity(n.Vel)
		h, ok := s.schedule(is.transport, base+n.Start, func(at float64) {
			if s.Stopping() {
				return
			}
			is.engine.TriggerNote(n.Pitch, n.Dur, at, vel)
		})
		if !ok {
			debug.Log("sched", "session %d closed, iteration %d abandoned", s.id, loopIndex)
			return handles
		}
		handles = append(handles, h)
	}

	if loopIndex == 0 && cfg.FadeInDuration > 0 {
		is.crossfade.ScheduleFadeIn(base, cfg.FadeInDuration)
	}

	if is.wantsSeamFade(cfg, loopIndex) {
		xfDur := cfg.CrossfadeDuration
		at := base + p.LoopDuration - xfDur
		h, ok := s.schedule(is.transport, at, func(at float64) {
			if s.Stopping() {
				return
			}
			is.crossfade.ScheduleFadeOut(at, xfDur)
		})
		if ok {
			handles = append(handles, h)
		}
	}

	debug.Log("sched", "session %d iteration %d: %d handles from %.3f", s.id, loopIndex, len(handles), base)
	return handles
}

// wantsSeamFade skips the seam fade after the last iteration of a finite loop
func (is *IterationScheduler) wantsSeamFade(cfg Config, loopIndex int) bool {
	if !cfg.CrossfadeEnabled || cfg.CrossfadeDuration <= 0 {
		return false
	}
	if !cfg.Infinite() && loopIndex >= cfg.MaxLoops-1 {
		return false
	}
	return true
}
