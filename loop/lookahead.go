package loop

import "go-loop/debug"

// maxRearmLead is the most the continuation fires ahead of the next window
const maxRearmLead = 0.05

// Lookahead keeps a bounded window of iterations registered.
//
// Arm schedules windowSize iterations, then one continuation just before the end
// of that window which, if the session is still looping, arms the next window.
// Finite loops use the same window and stop arming at maxLoops. At any instant
// at most windowSize iterations' worth of callbacks are outstanding.
type Lookahead struct {
	sched      *IterationScheduler
	transport  Transport
	windowSize int
}

// NewLookahead creates a manager keeping windowSize iterations ahead
func NewLookahead(sched *IterationScheduler, tr Transport, windowSize int) *Lookahead {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Lookahead{sched: sched, transport: tr, windowSize: windowSize}
}

// Arm schedules iterations [from, from+windowSize), capped at maxLoops for
// finite loops, and the continuation that re-arms from the end of that window
func (l *Lookahead) Arm(p Prepared, s *Session, from int) {
	if !s.Looping() || s.Stopping() {
		return
	}
	next := from + l.windowSize
	if !s.cfg.Infinite() && next > s.cfg.MaxLoops {
		next = s.cfg.MaxLoops
	}
	for i := from; i < next; i++ {
		l.sched.ScheduleIteration(p, i, s)
	}
	if !s.cfg.Infinite() && next >= s.cfg.MaxLoops {
		return
	}

	at := s.origin + float64(next)*p.LoopDuration - rearmLead(p, s.cfg)
	armed := s.armLookahead(l.transport, at, func(float64) {
		if !s.Looping() || s.Stopping() {
			return
		}
		l.Arm(p, s, next)
	})
	if armed {
		debug.Log("look", "session %d armed re-arm for iteration %d at %.3f", s.id, next, at)
	}
}

// rearmLead lets the next window register before its first notes are due.
// It stays inside the quiet tail of an iteration, after its last callback, so
// the previous window has fully fired by the time the next one is added.
func rearmLead(p Prepared, cfg Config) float64 {
	last := 0.0
	for _, n := range p.Notes {
		if n.Start > last {
			last = n.Start
		}
	}
	if cfg.CrossfadeEnabled && cfg.CrossfadeDuration > 0 {
		if seam := p.LoopDuration - cfg.CrossfadeDuration; seam > last {
			last = seam
		}
	}
	tail := p.LoopDuration - last
	if tail <= 0 {
		return 0
	}
	lead := tail / 2
	if lead > maxRearmLead {
		lead = maxRearmLead
	}
	return lead
}
