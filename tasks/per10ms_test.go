package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Swind/go-txcore/core"
	"github.com/Swind/go-txcore/hwtimer"
)

func newTickTimer(t *testing.T, tick *core.BinarySemaphore) *hwtimer.Group {
	t.Helper()
	g := hwtimer.NewGroup(0, 2, hwtimer.WithManualDrive())
	t.Cleanup(g.Stop)
	cfg := hwtimer.TenMillisecond()
	isr := hwtimer.NewTickISR(g, 0, tick)
	for _, err := range []error{
		g.Init(0, cfg),
		g.SetCounterValue(0, 0),
		g.SetAlarmValue(0, cfg.AlarmValue),
		g.EnableIntr(0),
		g.RegisterISR(0, isr.Handle, 0),
		g.Start(0),
	} {
		if err != nil {
			t.Fatalf("timer setup error = %v", err)
		}
	}
	return g
}

// TestPer10msLoop_OneRunPerDrainedTick verifies N interrupts give N runs
// Given: a per10ms task that keeps up with the heartbeat
// When: the timer fires N times, each tick drained before the next
// Then: the callback ran exactly N times and the heartbeat bit is set
func TestPer10msLoop_OneRunPerDrainedTick(t *testing.T) {
	k := newKernel(t, nil, nil)
	tick, _ := k.CreateBinarySemaphore("per10ms")
	timer := newTickTimer(t, tick)

	var runs atomic.Int32
	var heartbeat core.Heartbeat
	loop := &Per10msLoop{
		Tick:      tick,
		Per10ms:   func(ctx context.Context) { runs.Add(1) },
		Heartbeat: &heartbeat,
	}
	startTask(t, k, Per10msTaskName, loop.Run)

	const n = 10
	for i := 1; i <= n; i++ {
		if err := timer.Fire(0); err != nil {
			t.Fatalf("Fire() error = %v", err)
		}
		want := int32(i)
		assertEventually(t, time.Second, func() bool { return runs.Load() == want })
	}

	time.Sleep(20 * time.Millisecond)
	if got := runs.Load(); got != n {
		t.Fatalf("runs = %d, want %d", got, n)
	}
	if heartbeat.Load()&core.HeartTimer10ms == 0 {
		t.Fatal("10ms heartbeat bit not marked")
	}
}

// TestPer10msLoop_StallCoalescesTicks verifies missed ticks merge
// Given: a per10ms callback stalled inside its first run
// When: five more ticks arrive during the stall
// Then: after the stall exactly one extra run happens
func TestPer10msLoop_StallCoalescesTicks(t *testing.T) {
	k := newKernel(t, nil, nil)
	tick, _ := k.CreateBinarySemaphore("per10ms")
	timer := newTickTimer(t, tick)

	entered := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	loop := &Per10msLoop{
		Tick: tick,
		Per10ms: func(ctx context.Context) {
			if runs.Add(1) == 1 {
				close(entered)
				<-release
			}
		},
	}
	startTask(t, k, Per10msTaskName, loop.Run)

	_ = timer.Fire(0)
	<-entered
	for i := 0; i < 5; i++ {
		_ = timer.Fire(0)
	}
	close(release)

	assertEventually(t, time.Second, func() bool { return runs.Load() == 2 })
	time.Sleep(30 * time.Millisecond)
	if got := runs.Load(); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}
	if got := tick.Coalesced(); got != 4 {
		t.Fatalf("Coalesced() = %d, want 4", got)
	}
}
