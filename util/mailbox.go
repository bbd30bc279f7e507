package util

import (
	"sync"
)

// Mailbox is a capacity-1 channel where Put never blocks: an unconsumed value
// is evicted and replaced by the new one. Receivers read from C.
type Mailbox[T any] struct {
	c     chan T
	evict func(T)

	l sync.Mutex
}

// NewMailbox creates a mailbox. evict, if non-nil, receives every value that
// was overwritten before being consumed. It is called with the put lock held.
func NewMailbox[T any](evict func(T)) *Mailbox[T] {
	return &Mailbox[T]{
		c:     make(chan T, 1),
		evict: evict,
	}
}

// Put stores v, returning true if an unconsumed value was evicted.
func (m *Mailbox[T]) Put(v T) bool {
	m.l.Lock()
	defer m.l.Unlock()

	evicted := false
	select {
	case old := <-m.c:
		evicted = true
		if m.evict != nil {
			m.evict(old)
		}
	default:
	}
	// Only receivers drain c and all writers hold l, so this cannot block.
	m.c <- v
	return evicted
}

// C is the receive side of the mailbox.
func (m *Mailbox[T]) C() <-chan T {
	return m.c
}

// Take removes the pending value without blocking.
func (m *Mailbox[T]) Take() (T, bool) {
	m.l.Lock()
	defer m.l.Unlock()
	select {
	case v := <-m.c:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Len reports whether a value is pending (0 or 1).
func (m *Mailbox[T]) Len() int {
	return len(m.c)
}
