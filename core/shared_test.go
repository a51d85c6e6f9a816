package core

import (
	"sync"
	"testing"
	"time"
)

// TestWatermark_KeepsMaximum verifies the watermark never decreases
// Given: cycle durations 5, 3, 12, 2 ms
// When: each is observed in order
// Then: the watermark is 12ms
func TestWatermark_KeepsMaximum(t *testing.T) {
	var w Watermark

	moved := []bool{}
	for _, ms := range []int{5, 3, 12, 2} {
		moved = append(moved, w.Observe(time.Duration(ms)*time.Millisecond))
	}

	if got := w.Load(); got != 12*time.Millisecond {
		t.Fatalf("Load() = %v, want 12ms", got)
	}
	if got := w.Micros(); got != 12000 {
		t.Fatalf("Micros() = %d, want 12000", got)
	}
	want := []bool{true, false, true, false}
	for i := range want {
		if moved[i] != want[i] {
			t.Fatalf("Observe #%d moved = %v, want %v", i, moved[i], want[i])
		}
	}
}

func TestWatermark_ConcurrentObserve(t *testing.T) {
	var w Watermark
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(us int) {
			defer wg.Done()
			w.Observe(time.Duration(us) * time.Microsecond)
		}(i)
	}
	wg.Wait()

	if got := w.Micros(); got != 100 {
		t.Fatalf("Micros() = %d, want 100", got)
	}
}

// TestHeartbeat_CheckAndClear verifies the watchdog is fed only once every
// producer checked in
// Main test items:
// 1. Partial heartbeat: check fails and bits stay
// 2. Full heartbeat: check succeeds and the word is cleared
func TestHeartbeat_CheckAndClear(t *testing.T) {
	var h Heartbeat

	h.Mark(HeartTimer10ms)
	if h.CheckAndClear(HeartWDTCheck) {
		t.Fatal("CheckAndClear() = true with only the 10ms bit")
	}
	if got := h.Load(); got != HeartTimer10ms {
		t.Fatalf("Load() = %b, want %b", got, HeartTimer10ms)
	}

	h.Mark(HeartTimerPulses)
	if !h.CheckAndClear(HeartWDTCheck) {
		t.Fatal("CheckAndClear() = false with every bit set")
	}
	if got := h.Load(); got != 0 {
		t.Fatalf("Load() = %b, want 0", got)
	}
}

func TestFlag(t *testing.T) {
	var f Flag
	if f.IsSet() {
		t.Fatal("zero Flag is set")
	}
	f.Set()
	if !f.IsSet() {
		t.Fatal("IsSet() = false after Set")
	}
	f.Store(false)
	if f.IsSet() {
		t.Fatal("IsSet() = true after Store(false)")
	}
	f.Store(true)
	f.Clear()
	if f.IsSet() {
		t.Fatal("IsSet() = true after Clear")
	}
}
