package transport

import (
	"context"
	"errors"
	"sync"
)

var errQueueClosed = errors.New("transport: queue closed")

// queue is the FIFO between the application and a worker goroutine.
//
// It is unbounded unless limit > 0. Consumers block on a condition variable
// instead of polling; close wakes every waiter.
type queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	limit  int
	closed bool
}

func newQueue[T any](limit int) *queue[T] {
	q := &queue[T]{limit: limit}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue[T]) lenLocked() int { return len(q.items) - q.head }

func (q *queue[T]) full() bool { return q.limit > 0 && q.lenLocked() >= q.limit }

func (q *queue[T]) appendLocked(v T) {
	// Reclaim the consumed prefix once it dominates the slice.
	if q.head > 0 && q.head >= len(q.items)/2 {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	q.items = append(q.items, v)
	q.cond.Broadcast()
}

// offer enqueues v without waiting. It fails with ErrBackpressure when a
// bounded queue is full.
func (q *queue[T]) offer(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed
	}
	if q.full() {
		return ErrBackpressure
	}
	q.appendLocked(v)
	return nil
}

// put enqueues v, waiting for room in a bounded queue.
func (q *queue[T]) put(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for !q.closed && q.full() {
		q.cond.Wait()
	}
	if q.closed {
		return errQueueClosed
	}
	q.appendLocked(v)
	return nil
}

func (q *queue[T]) popLocked() T {
	var zero T
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	q.cond.Broadcast()
	return v
}

// tryPop dequeues without waiting.
func (q *queue[T]) tryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lenLocked() == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// pop waits for an item. It returns false once the queue is closed and
// drained; items queued before close are still delivered.
func (q *queue[T]) pop() (T, bool) {
	v, err := q.popContext(context.Background())
	return v, err == nil
}

// popContext is pop bounded by ctx. It returns errQueueClosed once the queue
// is closed and drained, or ctx.Err().
func (q *queue[T]) popContext(ctx context.Context) (T, error) {
	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.lenLocked() == 0 {
		var zero T
		if q.closed {
			return zero, errQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		q.cond.Wait()
	}
	return q.popLocked(), nil
}

func (q *queue[T]) wake() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// close stops further enqueues. Already queued items stay available.
func (q *queue[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// abort closes the queue and discards whatever is still queued.
// It returns the number of discarded items.
func (q *queue[T]) abort() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.lenLocked()
	q.closed = true
	clear(q.items)
	q.items = nil
	q.head = 0
	q.cond.Broadcast()
	return n
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}
