package transport

import "sync"

// Manual is a transport whose clock only moves when told to. Callbacks run
// synchronously inside Advance/AdvanceTo, in time order, on the caller's goroutine.
type Manual struct {
	mu  sync.Mutex
	now float64
	q   *queue
}

// NewManual creates a manual transport at time zero
func NewManual() *Manual {
	return &Manual{q: newQueue()}
}

// Now returns the current virtual time
func (m *Manual) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Schedule registers fn to run at the given time
func (m *Manual) Schedule(at float64, fn Callback) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.add(at, fn)
}

// Cancel removes a pending callback
func (m *Manual) Cancel(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.remove(h)
}

// Pending returns the number of callbacks not yet fired or cancelled
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Len()
}

// NextAt returns the time of the earliest pending callback
func (m *Manual) NextAt() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.q.peek()
	if e == nil {
		return 0, false
	}
	return e.at, true
}

// Advance moves the clock forward by d seconds
func (m *Manual) Advance(d float64) int {
	return m.AdvanceTo(m.Now() + d)
}

// AdvanceTo fires every callback due at or before t, including ones scheduled
// by callbacks during the sweep, then leaves the clock at t. Returns the number fired.
func (m *Manual) AdvanceTo(t float64) int {
	fired := 0
	for {
		m.mu.Lock()
		e := m.q.peek()
		if e == nil || e.at > t {
			if t > m.now {
				m.now = t
			}
			m.mu.Unlock()
			return fired
		}
		m.q.pop()
		if e.at > m.now {
			m.now = e.at
		}
		m.mu.Unlock()

		// Run outside the lock so callbacks can schedule and cancel
		e.fn(e.at)
		fired++
	}
}

// Drain fires everything pending, however far in the future
func (m *Manual) Drain() int {
	fired := 0
	for {
		at, ok := m.NextAt()
		if !ok {
			return fired
		}
		fired += m.AdvanceTo(at)
	}
}
