package sockhub

import (
	"sync"
)

// dispatchQueue runs tasks one at a time, in submission order, on its own
// goroutine. push never blocks.
type dispatchQueue struct {
	log Logger

	mu     sync.Mutex
	tasks  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newDispatchQueue(log Logger) *dispatchQueue {
	q := &dispatchQueue{
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// push schedules fn. It reports false once the queue is closed.
func (q *dispatchQueue) push(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// wait blocks until every task pushed before the call has run.
func (q *dispatchQueue) wait() {
	ch := make(chan struct{})
	if !q.push(func() { close(ch) }) {
		return
	}
	select {
	case <-ch:
	case <-q.done:
	}
}

// close stops the queue. Pending tasks are dropped.
func (q *dispatchQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.tasks = nil
	close(q.done)
}

func (q *dispatchQueue) run() {
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}

		for {
			q.mu.Lock()
			if q.closed || len(q.tasks) == 0 {
				q.mu.Unlock()
				break
			}
			batch := q.tasks
			q.tasks = nil
			q.mu.Unlock()

			for _, fn := range batch {
				q.exec(fn)
			}
		}
	}
}

func (q *dispatchQueue) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("handler panic", "panic", r)
		}
	}()
	fn()
}
