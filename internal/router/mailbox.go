package router

import "sync"

// mailbox is the FIFO between OnMessage and the routing goroutine. Put
// never blocks so the connection's callback goroutine is never stalled by
// a slow handler; Take hands out batches.
type mailbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	closed bool

	received  int64
	delivered int64
	highWater int
}

func newMailbox[T any](initialCapacity int) *mailbox[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &mailbox[T]{items: make([]T, 0, initialCapacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Put appends an item. Returns false if the mailbox is closed.
func (b *mailbox[T]) Put(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	// Reclaim the consumed prefix before append grows the backing array.
	if b.head > 0 && len(b.items) == cap(b.items) {
		n := copy(b.items, b.items[b.head:])
		clear(b.items[n:])
		b.items = b.items[:n]
		b.head = 0
	}

	b.items = append(b.items, item)
	b.received++
	if pending := len(b.items) - b.head; pending > b.highWater {
		b.highWater = pending
	}

	b.cond.Signal()
	return true
}

// Take blocks until at least one item is pending and returns up to limit of
// them (all if limit <= 0). Returns false once closed and drained.
func (b *mailbox[T]) Take(limit int) ([]T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) == b.head && !b.closed {
		b.cond.Wait()
	}

	pending := len(b.items) - b.head
	if pending == 0 {
		return nil, false
	}
	if limit > 0 && limit < pending {
		pending = limit
	}

	out := make([]T, pending)
	copy(out, b.items[b.head:b.head+pending])
	clear(b.items[b.head : b.head+pending])
	b.head += pending
	b.delivered += int64(pending)

	if b.head == len(b.items) {
		b.items = b.items[:0]
		b.head = 0
	}
	return out, true
}

// Close rejects further puts. Take drains what is left.
func (b *mailbox[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Stats returns mailbox statistics.
func (b *mailbox[T]) Stats() MailboxStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return MailboxStats{
		Pending:   len(b.items) - b.head,
		HighWater: b.highWater,
		Received:  b.received,
		Delivered: b.delivered,
	}
}

// MailboxStats contains mailbox statistics.
type MailboxStats struct {
	Pending   int
	HighWater int
	Received  int64
	Delivered int64
}
