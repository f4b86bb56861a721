package util

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrMailboxClosed is returned by Push after Close
var ErrMailboxClosed = errors.New("mailbox closed")

// slot is a single element of the mailbox linked list
type slot[T any] struct {
	value T
	next  atomic.Pointer[slot[T]]
}

// Mailbox is an unbounded multi-producer single-consumer queue.
//
// Producers append to a lock-free linked list, a single pump goroutine moves the
// items in order to the channel returned by Recv. Push never blocks, so a slow
// consumer can't stall a producer. Items pushed by one producer are delivered in
// push order, items of different producers interleave in the order their append
// succeeded.
type Mailbox[T any] struct {
	head   atomic.Pointer[slot[T]] // last delivered slot (sentinel)
	tail   atomic.Pointer[slot[T]] // last appended slot
	out    chan T
	closed atomic.Bool
	queued atomic.Int64

	mu   sync.Mutex
	wake *sync.Cond
}

// NewMailbox creates a mailbox and starts its pump goroutine.
// The goroutine ends after Close once every queued item has been received.
func NewMailbox[T any]() *Mailbox[T] {
	sentinel := &slot[T]{}
	m := &Mailbox[T]{out: make(chan T)}
	m.wake = sync.NewCond(&m.mu)
	m.head.Store(sentinel)
	m.tail.Store(sentinel)

	go m.pump()
	return m
}

// Push appends value. It returns ErrMailboxClosed after Close.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Mailbox[T]) Push(value T) error {
	if m.closed.Load() {
		return ErrMailboxClosed
	}

	s := &slot[T]{value: value}
	for spins := 0; ; spins++ {
		last := m.tail.Load()
		next := last.next.Load()
		if next != nil {
			// another producer appended but did not move the tail yet
			m.tail.CompareAndSwap(last, next)
			continue
		}
		if last.next.CompareAndSwap(nil, s) {
			m.tail.CompareAndSwap(last, s)
			break
		}
		if spins > 10 {
			runtime.Gosched()
		}
	}

	m.queued.Add(1)
	m.mu.Lock()
	m.wake.Signal()
	m.mu.Unlock()
	return nil
}

// pump delivers queued items to out until the mailbox is closed and drained
func (m *Mailbox[T]) pump() {
	defer close(m.out)

	for {
		head := m.head.Load()
		next := head.next.Load()

		if next == nil {
			m.mu.Lock()
			for head.next.Load() == nil && !m.closed.Load() {
				m.wake.Wait()
			}
			m.mu.Unlock()

			if head.next.Load() == nil {
				return // closed and drained
			}
			continue
		}

		value := next.value
		var zero T
		next.value = zero // drop the reference, next becomes the new sentinel
		m.head.Store(next)
		m.queued.Add(-1)

		m.out <- value
	}
}

// Recv returns the channel items are delivered on. It is closed after Close
// once all queued items have been received.
func (m *Mailbox[T]) Recv() <-chan T {
	return m.out
}

// Close stops accepting new items. Queued items are still delivered.
func (m *Mailbox[T]) Close() {
	m.closed.Store(true)
	m.mu.Lock()
	m.wake.Broadcast()
	m.mu.Unlock()
}

// IsClosed returns true if the mailbox is closed.
func (m *Mailbox[T]) IsClosed() bool {
	return m.closed.Load()
}

// Len returns the number of items not yet handed to the pump.
// The value is approximate under concurrent pushes.
func (m *Mailbox[T]) Len() int {
	return max(int(m.queued.Load()), 0)
}
