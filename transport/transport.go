// Package transport delivers time-stamped callbacks on a shared timeline.
//
// Times are float64 seconds on the transport's own monotonic clock. A callback
// receives the time it was scheduled for, which may be slightly earlier than
// Now() when it actually runs.
package transport

import (
	"container/heap"
	"errors"
)

// Handle identifies a scheduled callback. Zero is never issued.
type Handle uint64

// Callback runs at (or just after) its scheduled time
type Callback func(at float64)

var (
	// ErrUnknownHandle is returned when cancelling a handle that is not pending
	ErrUnknownHandle = errors.New("transport: unknown handle")
	// ErrClosed is returned by operations on a closed transport
	ErrClosed = errors.New("transport: closed")
)

type entry struct {
	at     float64
	seq    uint64
	handle Handle
	fn     Callback
	index  int
}

// queue is a min-heap of pending callbacks ordered by time then insertion
type queue struct {
	items   []*entry
	pending map[Handle]*entry
	seq     uint64
	next    Handle
}

func newQueue() *queue {
	return &queue{pending: make(map[Handle]*entry)}
}

func (q *queue) Len() int { return len(q.items) }

func (q *queue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.at != b.at {
		return a.at < b.at
	}
	return a.seq < b.seq
}

func (q *queue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *queue) Push(x any) {
	e := x.(*entry)
	e.index = len(q.items)
	q.items = append(q.items, e)
}

func (q *queue) Pop() any {
	old := q.items
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	e.index = -1
	return e
}

func (q *queue) add(at float64, fn Callback) Handle {
	q.next++
	q.seq++
	e := &entry{at: at, seq: q.seq, handle: q.next, fn: fn}
	heap.Push(q, e)
	q.pending[e.handle] = e
	return e.handle
}

func (q *queue) remove(h Handle) error {
	e, ok := q.pending[h]
	if !ok {
		return ErrUnknownHandle
	}
	heap.Remove(q, e.index)
	delete(q.pending, h)
	return nil
}

// peek returns the earliest pending entry (nil if empty)
func (q *queue) peek() *entry {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *queue) pop() *entry {
	e := heap.Pop(q).(*entry)
	delete(q.pending, e.handle)
	return e
}
