package core

import (
	"context"
	"testing"
	"time"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// TestDelayUntil_NoDrift verifies deadlines advance by exactly one period
// regardless of how late the caller was
// Given: a 50ms period and a body that overruns by 30ms once
// When: the loop keeps waiting with DelayUntil
// Then: every wake happens on the original 50ms grid
func TestDelayUntil_NoDrift(t *testing.T) {
	clock := NewManualClock(testEpoch)
	ctx := context.Background()
	lastWake := clock.Now()

	// Late by 30ms: the next deadline is already 20ms away, not 50ms.
	clock.Advance(30 * time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- DelayUntil(ctx, clock, &lastWake, 50*time.Millisecond) }()

	assertEventually(t, time.Second, func() bool { return clock.Sleepers() == 1 })
	clock.Advance(20 * time.Millisecond)
	if err := <-done; err != nil {
		t.Fatalf("DelayUntil() error = %v", err)
	}
	if want := testEpoch.Add(50 * time.Millisecond); !lastWake.Equal(want) {
		t.Fatalf("lastWake = %v, want %v", lastWake, want)
	}
}

// TestDelayUntil_PassedDeadlineReturnsImmediately verifies a missed deadline
// does not sleep
func TestDelayUntil_PassedDeadlineReturnsImmediately(t *testing.T) {
	clock := NewManualClock(testEpoch)
	lastWake := clock.Now()
	clock.Advance(120 * time.Millisecond)

	if err := DelayUntil(context.Background(), clock, &lastWake, 50*time.Millisecond); err != nil {
		t.Fatalf("DelayUntil() error = %v", err)
	}
	if err := DelayUntil(context.Background(), clock, &lastWake, 50*time.Millisecond); err != nil {
		t.Fatalf("DelayUntil() error = %v", err)
	}
	if want := testEpoch.Add(100 * time.Millisecond); !lastWake.Equal(want) {
		t.Fatalf("lastWake = %v, want %v", lastWake, want)
	}
	if got := clock.Sleepers(); got != 0 {
		t.Fatalf("Sleepers() = %d, want 0", got)
	}
}

// TestManualClock_SleepCancel verifies a canceled sleeper leaves the queue
func TestManualClock_SleepCancel(t *testing.T) {
	clock := NewManualClock(testEpoch)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- clock.Sleep(ctx, time.Hour) }()
	assertEventually(t, time.Second, func() bool { return clock.Sleepers() == 1 })
	cancel()

	if err := <-done; err != context.Canceled {
		t.Fatalf("Sleep() error = %v, want %v", err, context.Canceled)
	}
	if got := clock.Sleepers(); got != 0 {
		t.Fatalf("Sleepers() = %d, want 0", got)
	}
}

// TestManualClock_WakesInDeadlineOrder verifies Advance only releases
// expired sleepers
func TestManualClock_WakesInDeadlineOrder(t *testing.T) {
	clock := NewManualClock(testEpoch)
	ctx := context.Background()
	short := make(chan struct{})
	long := make(chan struct{})

	go func() { _ = clock.Sleep(ctx, 10*time.Millisecond); close(short) }()
	go func() { _ = clock.Sleep(ctx, 30*time.Millisecond); close(long) }()
	assertEventually(t, time.Second, func() bool { return clock.Sleepers() == 2 })

	clock.Advance(10 * time.Millisecond)
	<-short
	select {
	case <-long:
		t.Fatal("30ms sleeper woke after 10ms")
	case <-time.After(10 * time.Millisecond):
	}

	clock.Advance(20 * time.Millisecond)
	<-long
}

func TestTmr2MHz(t *testing.T) {
	clock := NewManualClock(testEpoch)

	clock.Advance(1000 * time.Microsecond)
	if got := Tmr2MHz(clock, testEpoch); got != 2000 {
		t.Fatalf("Tmr2MHz() = %d, want 2000", got)
	}

	// 16-bit wrap: 40000us = 80000 ticks
	clock.Advance(39000 * time.Microsecond)
	if got := Tmr2MHz(clock, testEpoch); got != uint16(80000%65536) {
		t.Fatalf("Tmr2MHz() = %d, want %d", got, 80000%65536)
	}
}
