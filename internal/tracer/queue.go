package tracer

import "sync"

// Queue is the pending set of running traces shared by the spawning and
// reaping goroutines.
type Queue struct {
	mu     sync.Mutex
	units  []*Unit
	notify chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends u and wakes a waiter.
func (q *Queue) Push(u *Unit) {
	q.mu.Lock()
	q.units = append(q.units, u)
	q.mu.Unlock()
	q.wake()
}

// PushAll appends units in order.
func (q *Queue) PushAll(units []*Unit) {
	if len(units) == 0 {
		return
	}
	q.mu.Lock()
	q.units = append(q.units, units...)
	q.mu.Unlock()
	q.wake()
}

// Drain checks out every queued unit, leaving the queue empty.
func (q *Queue) Drain() []*Unit {
	q.mu.Lock()
	out := q.units
	q.units = nil
	q.mu.Unlock()
	return out
}

// Len returns the number of queued units.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.units)
}

// Notify fires after pushes. It is level-triggered with capacity one, so
// callers must re-check Len.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
