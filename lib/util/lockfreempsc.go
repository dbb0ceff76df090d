// Package util provides a lock-free Multi-Producer Single-Consumer (MPSC)
// queue.
//
// Guarantees:
//
//   - Push is lock-free and safe for any number of concurrent producers
//   - the queue is unbounded, limited only by available memory
//   - one goroutine consumes through the Recv() channel
//   - items pushed by a single producer arrive in push order; no ordering
//     holds between concurrent producers
package util

import (
	"runtime"
	"sync/atomic"
)

// node is one element of the queue's linked list.
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue built on
// an atomically linked list behind a sentinel head. The consumer goroutine
// drains the list into the output channel and sleeps on the notify channel
// while the list is empty.
type LockFreeMPSC[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	out    chan *T
	notify chan struct{}
	closed atomic.Bool
}

// NewLockFreeMPSC creates the queue and starts its consumer goroutine.
func NewLockFreeMPSC[T any]() *LockFreeMPSC[T] {
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		out:    make(chan *T),
		notify: make(chan struct{}, 1),
	}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.consume()

	return q
}

// Push appends value to the queue. Returns false if the queue is closed or
// value is nil.
//
// Thread-safety: safe for any number of concurrent producers.
func (q *LockFreeMPSC[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	n := &node[T]{value: value}

	var backoff uint8
	for {
		tail := q.tail.Load()

		if next := tail.next.Load(); next != nil {
			// another producer appended but has not moved tail yet, help it
			q.tail.CompareAndSwap(tail, next)
		} else if tail.next.CompareAndSwap(nil, n) {
			// appended; a failed tail CAS here means another producer helped
			q.tail.CompareAndSwap(tail, n)
			q.wake()
			return true
		}

		// yield between retries, spinning longer the more often we lose
		if backoff < 10 {
			backoff++
		}
		for i := 0; i < 1<<backoff; i++ {
			runtime.Gosched()
		}
	}
}

// wake leaves a wakeup token for the consumer. The token is buffered, so a
// push racing the consumer's empty check can never be lost; a token already
// pending covers any number of pushes.
func (q *LockFreeMPSC[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// consume moves items from the linked list into the output channel.
func (q *LockFreeMPSC[T]) consume() {
	defer close(q.out)

	for {
		delivered := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}

			// move the head before handing the value out, the node itself
			// becomes the new sentinel
			q.head.Store(next)
			q.out <- next.value
			next.value = nil
			delivered = true
		}

		if !delivered {
			if q.closed.Load() {
				// a push may have landed between the drain and the closed
				// check, drain again before closing the channel
				if q.head.Load().next.Load() == nil {
					return
				}
				continue
			}
			<-q.notify
		}
	}
}

// Recv returns the receive channel of the queue. The channel is closed once
// the queue is closed and fully drained.
func (q *LockFreeMPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close closes the queue, rejecting further pushes. Items already queued are
// still delivered before the Recv channel closes.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)
	q.wake()
}
