package core

import (
	"sync/atomic"
	"time"
)

// Flag is a boolean shared between tasks; every access is a single atomic word.
type Flag struct {
	v atomic.Bool
}

func (f *Flag) Set()         { f.v.Store(true) }
func (f *Flag) Clear()       { f.v.Store(false) }
func (f *Flag) Store(b bool) { f.v.Store(b) }
func (f *Flag) IsSet() bool  { return f.v.Load() }

// Watermark records the largest duration observed in a session.
// Its value never decreases; readers may see a stale value but never a torn one.
type Watermark struct {
	us atomic.Int64
}

// Observe raises the watermark to d if d exceeds every previous observation.
// It reports whether the watermark moved.
func (w *Watermark) Observe(d time.Duration) bool {
	us := d.Microseconds()
	for {
		cur := w.us.Load()
		if us <= cur {
			return false
		}
		if w.us.CompareAndSwap(cur, us) {
			return true
		}
	}
}

// Load returns the current watermark.
func (w *Watermark) Load() time.Duration {
	return time.Duration(w.us.Load()) * time.Microsecond
}

// Micros returns the current watermark in microseconds.
func (w *Watermark) Micros() int64 { return w.us.Load() }

// Heartbeat bits marked by the periodic producers. The watchdog is fed only
// once every producer has checked in since the last feed.
const (
	HeartTimer10ms   uint32 = 1 << 0
	HeartTimerPulses uint32 = 1 << 1

	HeartWDTCheck = HeartTimer10ms | HeartTimerPulses
)

// Heartbeat is the watchdog check-in word.
type Heartbeat struct {
	v atomic.Uint32
}

// Mark ORs bits into the heartbeat.
func (h *Heartbeat) Mark(bits uint32) { h.v.Or(bits) }

// Load returns the current heartbeat word.
func (h *Heartbeat) Load() uint32 { return h.v.Load() }

// CheckAndClear clears the heartbeat and returns true iff it equals sentinel.
func (h *Heartbeat) CheckAndClear(sentinel uint32) bool {
	return h.v.CompareAndSwap(sentinel, 0)
}
