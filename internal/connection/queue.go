package connection

import "sync"

// queue is an unbounded FIFO between the goroutines that produce events
// (channel pumps, timers, callers) and the single goroutine consuming them.
// Send never blocks, so a busy event loop cannot stall a pump or a timer.
type queue[T any] struct {
	mu     sync.Mutex
	ready  *sync.Cond
	items  []T
	closed bool
}

func newQueue[T any](hint int) *queue[T] {
	q := &queue[T]{items: make([]T, 0, max(hint, 1))}
	q.ready = sync.NewCond(&q.mu)
	return q
}

// Send appends item. It reports false once the queue is closed.
func (q *queue[T]) Send(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, item)
	q.ready.Signal()
	return true
}

// Receive blocks for the next item. It reports false once the queue is
// closed and empty.
func (q *queue[T]) Receive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.ready.Wait()
	}

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = q.items[:0:0] // release the drained backing array
	}
	return item, true
}

// Close rejects further sends. Items already queued are still received.
func (q *queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.ready.Broadcast()
}

// Len returns the number of queued items.
func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
