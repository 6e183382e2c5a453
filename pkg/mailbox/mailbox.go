// Package mailbox provides a single-slot handoff between two pipeline stages.
//
// A Mailbox holds at most one value. Producers block in Put while the slot is
// occupied and consumers block in Take while it is empty, so a slow consumer
// back-pressures its producer instead of letting messages pile up. A value is
// never overwritten, duplicated or delivered twice.
package mailbox

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by blocking operations on a closed mailbox.
var ErrClosed = errors.New("mailbox closed")

// Stats is a snapshot of mailbox counters.
type Stats struct {
	Puts    uint64 // Values stored
	Gets    uint64 // Values removed
	Dropped uint64 // Values reported undeliverable via Drop
}

// Mailbox is a single-slot, mutex-protected handoff point.
type Mailbox[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	value    T
	occupied bool
	closed   bool
	stats    Stats
}

// New creates an empty mailbox.
func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Put waits until the mailbox is empty and stores v. It returns ctx.Err() if
// the context ends first and ErrClosed if the mailbox is closed; in both cases
// v is not stored.
func (m *Mailbox[T]) Put(ctx context.Context, v T) error {
	stop := context.AfterFunc(ctx, m.wake)
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	for m.occupied && !m.closed && ctx.Err() == nil {
		m.cond.Wait()
	}
	if m.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.store(v)
	return nil
}

// TryPut stores v only if the mailbox is empty and open.
func (m *Mailbox[T]) TryPut(v T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.occupied || m.closed {
		return false
	}
	m.store(v)
	return true
}

// Get removes and returns the pending value without blocking. The boolean is
// false when the mailbox is empty.
func (m *Mailbox[T]) Get() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.occupied {
		var zero T
		return zero, false
	}
	return m.load(), true
}

// Take waits for a value and removes it. A value stored before Close is still
// delivered; once the mailbox is empty and closed Take returns ErrClosed.
func (m *Mailbox[T]) Take(ctx context.Context) (T, error) {
	stop := context.AfterFunc(ctx, m.wake)
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	for !m.occupied && !m.closed && ctx.Err() == nil {
		m.cond.Wait()
	}
	var zero T
	if m.occupied {
		return m.load(), nil
	}
	if m.closed {
		return zero, ErrClosed
	}
	return zero, ctx.Err()
}

// Empty reports whether no value is pending.
func (m *Mailbox[T]) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.occupied
}

// Close wakes all waiters. Subsequent puts fail with ErrClosed.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()
}

// Drop records that a producer discarded a value it could not deliver.
func (m *Mailbox[T]) Drop() {
	m.mu.Lock()
	m.stats.Dropped++
	m.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (m *Mailbox[T]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// store and load must be called with mu held.
func (m *Mailbox[T]) store(v T) {
	m.value = v
	m.occupied = true
	m.stats.Puts++
	m.cond.Broadcast()
}

func (m *Mailbox[T]) load() T {
	v := m.value
	var zero T
	m.value = zero
	m.occupied = false
	m.stats.Gets++
	m.cond.Broadcast()
	return v
}

// wake is run on context cancellation. Taking the lock guarantees a waiter
// that already checked ctx.Err() is parked in Wait before the broadcast.
func (m *Mailbox[T]) wake() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cond.Broadcast()
}
