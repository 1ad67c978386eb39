package transport

import (
	"runtime"
	"sync"
	"time"

	"go-loop/debug"
)

// Realtime is a wall-clock transport. A single dispatch goroutine owns delivery,
// so callbacks never run concurrently with each other.
type Realtime struct {
	mu     sync.Mutex
	q      *queue
	t0     time.Time
	closed bool

	interruptChan chan struct{} // signal dispatch loop to recalculate (queue changed)
	stopChan      chan struct{}
	doneChan      chan struct{}
}

// NewRealtime creates a transport whose clock starts at zero now, and starts its
// dispatch goroutine
func NewRealtime() *Realtime {
	r := &Realtime{
		q:             newQueue(),
		t0:            time.Now(),
		interruptChan: make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
	go r.dispatchLoop()
	return r
}

// Now returns seconds since the transport was created (monotonic)
func (r *Realtime) Now() float64 {
	return time.Since(r.t0).Seconds()
}

// Available reports whether the transport still accepts callbacks
func (r *Realtime) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

// Schedule registers fn to run at the given transport time. Returns 0 if closed.
func (r *Realtime) Schedule(at float64, fn Callback) Handle {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		debug.Log("transport", "schedule at %.3f after close ignored", at)
		return 0
	}
	h := r.q.add(at, fn)
	r.mu.Unlock()

	r.interrupt()
	return h
}

// Cancel removes a pending callback
func (r *Realtime) Cancel(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return r.q.remove(h)
}

// Pending returns the number of callbacks not yet fired or cancelled
func (r *Realtime) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.q.Len()
}

// Close stops the dispatch goroutine and drops everything pending
func (r *Realtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	dropped := r.q.Len()
	r.q = newQueue()
	r.mu.Unlock()

	close(r.stopChan)
	<-r.doneChan
	debug.Log("transport", "closed, dropped %d pending callbacks", dropped)
	return nil
}

// interrupt signals the dispatch loop to recalculate (called when the queue changes)
func (r *Realtime) interrupt() {
	select {
	case r.interruptChan <- struct{}{}:
	default:
	}
}

// dispatchLoop waits for the earliest callback and runs it
func (r *Realtime) dispatchLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(r.doneChan)

	for {
		r.mu.Lock()
		next := r.q.peek()
		if next == nil {
			r.mu.Unlock()
			select {
			case <-r.stopChan:
				return
			case <-r.interruptChan:
			}
			continue
		}

		wait := time.Duration((next.at - r.Now()) * float64(time.Second))
		if wait > 0 {
			r.mu.Unlock()
			timer := time.NewTimer(wait)
			select {
			case <-r.stopChan:
				timer.Stop()
				return
			case <-r.interruptChan:
				// Queue changed, an earlier callback may be first now
				timer.Stop()
			case <-timer.C:
			}
			continue
		}

		e := r.q.pop()
		r.mu.Unlock()

		e.fn(e.at)
		debug.LogEvery(100, "transport", "dispatched at=%.3f late=%.4f", e.at, r.Now()-e.at)
	}
}
