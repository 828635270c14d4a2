// Package resilience holds the concurrency primitives used by the
// dispatcher to bound fan-out work.
package resilience

import (
	"context"
	"sync"
)

// Semaphore is a counting semaphore that caps how many requests run at
// once. Waiters are woken in arrival order, so queued models start in a
// predictable sequence when permits free up.
type Semaphore struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	waiters  []chan struct{}
}

// NewSemaphore creates a semaphore with the given capacity. A capacity
// below one is clamped to one.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{capacity: capacity}
}

// TryAcquire takes a permit without blocking and reports whether it got one.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inUse < s.capacity {
		s.inUse++
		return true
	}
	return false
}

// Acquire blocks until a permit is available or the context ends. On
// context cancellation the waiter is removed from the queue and ctx.Err()
// is returned.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if s.TryAcquire() {
		return nil
	}

	waiter := make(chan struct{})
	s.mu.Lock()
	s.waiters = append(s.waiters, waiter)
	s.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range s.waiters {
			if w == waiter {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				s.mu.Unlock()
				return ctx.Err()
			}
		}
		s.mu.Unlock()
		// Lost the race with Release: the permit was handed over after
		// ctx fired, so give it back before reporting cancellation.
		select {
		case <-waiter:
			s.Release()
		default:
		}
		return ctx.Err()
	}
}

// Release returns a permit. If anyone is waiting the permit transfers
// directly to the oldest waiter instead of being freed.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inUse <= 0 {
		return
	}

	if len(s.waiters) > 0 {
		waiter := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(waiter)
		return
	}

	s.inUse--
}

// InUse returns how many permits are currently held.
func (s *Semaphore) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse
}

// Capacity returns the permit cap.
func (s *Semaphore) Capacity() int {
	return s.capacity
}

// Available returns how many permits are free.
func (s *Semaphore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity - s.inUse
}
