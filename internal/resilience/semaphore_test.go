package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewSemaphoreClampsCapacity(t *testing.T) {
	for _, capacity := range []int{0, -3} {
		if got := NewSemaphore(capacity).Capacity(); got != 1 {
			t.Errorf("NewSemaphore(%d).Capacity() = %d, want 1", capacity, got)
		}
	}
	if got := NewSemaphore(5).Capacity(); got != 5 {
		t.Errorf("Capacity() = %d, want 5", got)
	}
}

func TestTryAcquireUpToCapacity(t *testing.T) {
	s := NewSemaphore(2)

	if !s.TryAcquire() || !s.TryAcquire() {
		t.Fatal("TryAcquire should succeed up to capacity")
	}
	if s.TryAcquire() {
		t.Error("TryAcquire should fail when full")
	}
	if got := s.InUse(); got != 2 {
		t.Errorf("InUse() = %d, want 2", got)
	}
	if got := s.Available(); got != 0 {
		t.Errorf("Available() = %d, want 0", got)
	}
}

func TestReleaseIsSafeWhenEmpty(t *testing.T) {
	s := NewSemaphore(2)
	s.TryAcquire()

	s.Release()
	s.Release() // extra release must be a no-op
	if got := s.Available(); got != 2 {
		t.Errorf("Available() = %d, want 2", got)
	}
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	s := NewSemaphore(1)
	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		s.Release()
	}()

	start := time.Now()
	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Acquire returned after %v, expected it to block", elapsed)
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	s := NewSemaphore(1)
	s.TryAcquire()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := s.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want DeadlineExceeded", err)
	}

	// The cancelled waiter must not wedge the queue.
	s.Release()
	if !s.TryAcquire() {
		t.Error("semaphore unusable after a cancelled waiter")
	}
}

func TestCapIsNeverExceeded(t *testing.T) {
	const capacity = 5
	s := NewSemaphore(capacity)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		peak int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Acquire(context.Background()); err != nil {
				return
			}
			defer s.Release()

			mu.Lock()
			if inUse := s.InUse(); inUse > peak {
				peak = inUse
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()

	if peak > capacity {
		t.Errorf("observed %d concurrent holders, cap is %d", peak, capacity)
	}
}

func TestReleaseTransfersPermitToWaiter(t *testing.T) {
	s := NewSemaphore(1)
	s.TryAcquire()

	acquired := make(chan struct{})
	go func() {
		if err := s.Acquire(context.Background()); err == nil {
			close(acquired)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	s.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never woke up after Release")
	}

	// Permit was transferred, not freed.
	if got := s.InUse(); got != 1 {
		t.Errorf("InUse() = %d, want 1 after transfer", got)
	}
}
