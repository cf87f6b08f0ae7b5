// Package queue provides the unbounded multi-producer single-consumer queue
// the server dispatcher uses to hand accepted requests to its one worker.
//
// Features and Guarantees:
//
//   - Lock-Free Append: producers append with compare-and-swap on a linked
//     list. They only share a read lock that Close takes exclusively.
//   - Unbounded Size: the queue grows as needed, limited only by available memory
//   - Per-Producer Order: items pushed by one goroutine are delivered in the order
//     they were pushed. Items from different producers are interleaved in the
//     order their appends completed.
//   - Single Consumer: exactly one goroutine is expected to range over Recv()
//   - Drain on Close: Close() acts as the shutdown sentinel. Every item Push
//     accepted is still delivered, after which the Recv() channel is closed.
//     Push returns false once Close has started.
package queue

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node is one element of the linked list
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// MPSC is a multi-producer single-consumer FIFO queue
type MPSC[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	out    chan *T
	closed atomic.Bool
	length atomic.Int64

	// Held shared by Push and exclusively by Close, so no append is in
	// flight once closed is set
	closeMu sync.RWMutex

	// Consumer wakeup
	mu   sync.Mutex
	cond *sync.Cond

	// Closed when the delivery goroutine has exited
	drained chan struct{}
}

// NewMPSC creates a queue and starts its delivery goroutine
func NewMPSC[T any]() *MPSC[T] {
	sentinel := &node[T]{}

	q := &MPSC[T]{
		out:     make(chan *T),
		drained: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.deliver()

	return q
}

// Push appends an item. It returns false if the item is nil or the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *MPSC[T]) Push(value *T) bool {
	if value == nil {
		return false
	}

	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()

		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// another producer may already have advanced the tail, that's fine
				q.tail.CompareAndSwap(tailNode, newNode)
				q.length.Add(1)
				q.wake()
				return true
			}
		} else {
			// help a producer that appended but has not moved the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin briefly under low contention, then yield
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// Recv returns the channel the consumer reads from.
// The channel is closed once the queue is closed and fully drained.
func (q *MPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close stops accepting new items. Already queued items are still delivered.
func (q *MPSC[T]) Close() {
	q.closeMu.Lock()
	q.closed.Store(true)
	q.closeMu.Unlock()
	q.wake()
}

// Drained returns a channel that is closed after the last item was delivered
func (q *MPSC[T]) Drained() <-chan struct{} {
	return q.drained
}

// IsClosed reports whether Close was called
func (q *MPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of items pushed but not yet handed to the consumer
func (q *MPSC[T]) Len() int {
	return int(q.length.Load())
}

// wake signals the delivery goroutine. The mutex is held so a signal can't
// slip in between the consumer's emptiness check and its Wait.
func (q *MPSC[T]) wake() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// deliver moves items from the linked list to the output channel
func (q *MPSC[T]) deliver() {
	defer close(q.drained)
	defer close(q.out)

	for {
		delivered := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			delivered = true

			value := next.value
			q.head.Store(next)
			q.length.Add(-1)
			q.out <- value

			// release the reference for the gc
			next.value = nil
		}

		if !delivered {
			q.mu.Lock()
			// closed is read first: once it is set every accepted append is visible
			closed := q.closed.Load()
			empty := q.head.Load().next.Load() == nil
			if empty && closed {
				q.mu.Unlock()
				return
			}
			if empty {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}
