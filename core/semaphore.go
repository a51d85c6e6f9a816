package core

import (
	"context"
	"sync/atomic"
	"time"
)

// BinarySemaphore is a capacity-1 notification object: an atomic pending
// flag plus a one-slot wake channel.
//
// Signals do not queue. A Give while a signal is already pending overwrites
// it (counted by Coalesced), so a waiter that falls behind runs once per
// wake rather than bursting through missed signals.
//
// Give/GiveFromISR never block. Take/TakeTimeout block and panic when
// called with an interrupt context.
type BinarySemaphore struct {
	name    string
	pending atomic.Bool
	wake    chan struct{}
	waiters atomic.Int32

	gives     atomic.Uint64
	coalesced atomic.Uint64
	takes     atomic.Uint64
	timeouts  atomic.Uint64
}

// NewBinarySemaphore returns an empty (not signaled) semaphore.
func NewBinarySemaphore(name string) *BinarySemaphore {
	return &BinarySemaphore{
		name: name,
		wake: make(chan struct{}, 1),
	}
}

// Name returns the semaphore name.
func (s *BinarySemaphore) Name() string { return s.name }

// Give signals the semaphore from task context.
// It returns false when a signal was already pending and this one merged into it.
func (s *BinarySemaphore) Give() bool {
	s.gives.Add(1)
	if !s.pending.CompareAndSwap(false, true) {
		s.coalesced.Add(1)
		return false
	}
	select {
	case s.wake <- struct{}{}:
	default:
		// A stale token is still buffered; it will wake the next waiter.
	}
	return true
}

// GiveFromISR is the interrupt-safe signal path. It reports whether a
// blocked waiter became ready, in which case the handler should yield.
func (s *BinarySemaphore) GiveFromISR(ictx *InterruptContext) (higherPriorityTaskWoken bool) {
	woken := s.waiters.Load() > 0
	if !s.Give() {
		return false
	}
	return woken
}

// Take blocks until the semaphore is signaled. It only returns early with
// ctx's error on process teardown.
func (s *BinarySemaphore) Take(ctx context.Context) error {
	assertNotInInterrupt(ctx, "Take("+s.name+")")

	if s.tryTake() {
		return nil
	}

	s.waiters.Add(1)
	defer s.waiters.Add(-1)
	for {
		if s.tryTake() {
			return nil
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// TakeTimeout waits at most timeout for a signal. It returns false on
// timeout or teardown; a timeout is not an error.
func (s *BinarySemaphore) TakeTimeout(ctx context.Context, timeout time.Duration) bool {
	assertNotInInterrupt(ctx, "TakeTimeout("+s.name+")")

	if s.tryTake() {
		return true
	}
	if timeout <= 0 {
		s.timeouts.Add(1)
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	s.waiters.Add(1)
	defer s.waiters.Add(-1)
	for {
		if s.tryTake() {
			return true
		}
		select {
		case <-s.wake:
		case <-timer.C:
			if s.tryTake() {
				return true
			}
			s.timeouts.Add(1)
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func (s *BinarySemaphore) tryTake() bool {
	if s.pending.CompareAndSwap(true, false) {
		s.takes.Add(1)
		return true
	}
	return false
}

// Pending reports whether a signal is waiting to be consumed.
func (s *BinarySemaphore) Pending() bool { return s.pending.Load() }

// Gives returns the number of signals posted.
func (s *BinarySemaphore) Gives() uint64 { return s.gives.Load() }

// Coalesced returns the number of signals merged into an already pending one.
func (s *BinarySemaphore) Coalesced() uint64 { return s.coalesced.Load() }

// Takes returns the number of consumed signals.
func (s *BinarySemaphore) Takes() uint64 { return s.takes.Load() }

// Timeouts returns the number of bounded waits that expired.
func (s *BinarySemaphore) Timeouts() uint64 { return s.timeouts.Load() }
