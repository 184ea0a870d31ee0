package patient

import (
	"context"
	"sync"
)

// writeQueue is an unbounded FIFO consumed by a single goroutine. Enqueue
// never blocks the caller, preserving the schedule-and-return contract of the
// record service; tasks run to completion in order and are not cancellable.
type writeQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func(context.Context)
	closed bool
	done   chan struct{}
}

func newWriteQueue() *writeQueue {
	q := &writeQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *writeQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task(context.Background())
	}
}

// Enqueue schedules a task. Tasks enqueued after Close are dropped.
func (q *writeQueue) Enqueue(task func(context.Context)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.tasks = append(q.tasks, task)
	q.cond.Signal()
}

// Flush blocks until every task enqueued before the call has completed.
func (q *writeQueue) Flush() {
	barrier := make(chan struct{})
	q.Enqueue(func(context.Context) { close(barrier) })

	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return
	}
	select {
	case <-barrier:
	case <-q.done:
	}
}

// Close drains outstanding tasks and stops the consumer goroutine.
func (q *writeQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.done
}
