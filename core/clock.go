package core

import (
	"context"
	"time"
)

// Clock is the time source used for run-time accounting, duration
// watermarks and absolute-deadline waits.
type Clock interface {
	Now() time.Time

	// Sleep blocks until d has elapsed or ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock reads the monotonic wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DelayUntil sleeps until *lastWake + period and then advances *lastWake by
// exactly one period, so execution jitter never accumulates into drift.
// If the deadline has already passed it returns immediately.
func DelayUntil(ctx context.Context, clock Clock, lastWake *time.Time, period time.Duration) error {
	next := lastWake.Add(period)
	*lastWake = next
	if d := next.Sub(clock.Now()); d > 0 {
		return clock.Sleep(ctx, d)
	}
	return ctx.Err()
}

// Tmr2MHz returns the free-running 16-bit counter clocked at 2 MHz,
// measured from epoch.
func Tmr2MHz(clock Clock, epoch time.Time) uint16 {
	return uint16(clock.Now().Sub(epoch).Microseconds() * 2)
}
