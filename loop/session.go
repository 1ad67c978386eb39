package loop

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go-loop/transport"
)

// Session is the runtime of one Start→Stop span. Every handle it issues is
// either fired or cancelled before the controller returns to Idle.
type Session struct {
	id       uint64
	origin   float64 // transport time of iteration 0
	prepared Prepared
	cfg      Config

	looping  atomic.Bool
	stopping atomic.Bool

	mu        sync.Mutex
	handles   map[transport.Handle]struct{}
	lookahead transport.Handle
	closed    bool
	issued    int
	fired     int
}

func newSession(id uint64, origin float64, p Prepared, cfg Config) *Session {
	s := &Session{
		id:       id,
		origin:   origin,
		prepared: p,
		cfg:      cfg,
		handles:  make(map[transport.Handle]struct{}),
	}
	s.looping.Store(true)
	return s
}

// Stopping reports whether stop has begun; callbacks check it before sounding
func (s *Session) Stopping() bool {
	return s.stopping.Load()
}

// Looping reports whether the session is still producing iterations
func (s *Session) Looping() bool {
	return s.looping.Load()
}

// Origin returns the transport time of iteration 0
func (s *Session) Origin() float64 {
	return s.origin
}

// Outstanding returns the number of handles neither fired nor cancelled
func (s *Session) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Issued returns the total number of handles the session registered
func (s *Session) Issued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued
}

// schedule registers fn and tracks its handle until it fires. Returns false once
// the session has been torn down.
func (s *Session) schedule(tr Transport, at float64, fn transport.Callback) (transport.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false
	}

	var h transport.Handle
	h = tr.Schedule(at, func(t float64) {
		s.mu.Lock()
		delete(s.handles, h)
		s.fired++
		s.mu.Unlock()
		fn(t)
	})
	if h == 0 {
		return 0, false
	}
	s.handles[h] = struct{}{}
	s.issued++
	return h, true
}

// armLookahead registers the lookahead continuation, replacing any previous one
func (s *Session) armLookahead(tr Transport, at float64, fn transport.Callback) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	var h transport.Handle
	h = tr.Schedule(at, func(t float64) {
		s.mu.Lock()
		if s.lookahead == h {
			s.lookahead = 0
		}
		s.mu.Unlock()
		fn(t)
	})
	s.lookahead = h
	return h != 0
}

// cancelLookahead drops the pending continuation so no further re-arm happens
func (s *Session) cancelLookahead(tr Transport) error {
	s.mu.Lock()
	h := s.lookahead
	s.lookahead = 0
	s.mu.Unlock()

	if h == 0 {
		return nil
	}
	if err := tr.Cancel(h); err != nil {
		return fmt.Errorf("%w: lookahead %d: %w", ErrScheduleCancel, h, err)
	}
	return nil
}

// close cancels every outstanding handle and refuses further scheduling.
// Each cancel is attempted independently; failures are joined.
func (s *Session) close(tr Transport) (cancelled int, err error) {
	s.mu.Lock()
	s.closed = true
	handles := make([]transport.Handle, 0, len(s.handles)+1)
	for h := range s.handles {
		handles = append(handles, h)
	}
	// A re-arm may have landed after the last cancelLookahead
	if s.lookahead != 0 {
		handles = append(handles, s.lookahead)
		s.lookahead = 0
	}
	s.handles = make(map[transport.Handle]struct{})
	s.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if cerr := tr.Cancel(h); cerr != nil {
			errs = append(errs, fmt.Errorf("%w: handle %d: %w", ErrScheduleCancel, h, cerr))
			continue
		}
		cancelled++
	}
	return cancelled, errors.Join(errs...)
}
