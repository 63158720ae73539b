package session

import "sync"

// eventQueue orders events onto out. push never blocks; pushWait blocks
// while limit events are pending, which throttles the device pumps
// without holding up Open or Close. A dispatcher goroutine runs only while
// events are pending.
type eventQueue struct {
	out   chan Event
	space chan struct{}
	limit int

	mu      sync.Mutex
	pending []Event
	running bool
}

func newEventQueue(size int) *eventQueue {
	return &eventQueue{
		out:   make(chan Event, size),
		space: make(chan struct{}, 1),
		limit: size,
	}
}

// push queues ev regardless of how many events are pending
func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.appendLocked(ev)
}

// pushWait queues ev once fewer than limit events are pending. It returns
// false without queueing if stop is closed first.
func (q *eventQueue) pushWait(ev Event, stop <-chan struct{}) bool {
	for {
		q.mu.Lock()
		if len(q.pending) < q.limit {
			q.appendLocked(ev)
			q.mu.Unlock()
			return true
		}
		q.mu.Unlock()

		select {
		case <-q.space:
		case <-stop:
			return false
		}
	}
}

func (q *eventQueue) appendLocked(ev Event) {
	q.pending = append(q.pending, ev)
	if !q.running {
		q.running = true
		go q.dispatch()
	}
}

func (q *eventQueue) dispatch() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.pending = nil
			q.mu.Unlock()
			return
		}
		ev := q.pending[0]
		q.pending[0] = Event{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.out <- ev

		select {
		case q.space <- struct{}{}:
		default:
		}
	}
}

// backlog returns the number of events not yet handed to out
func (q *eventQueue) backlog() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
