package core

import (
	"context"
	"testing"
	"time"
)

func newTestHandle(clock Clock, logger Logger, ph PanicHandler, metrics Metrics) *TaskHandle {
	cfg := DefaultKernelConfig()
	cfg.Clock = clock
	cfg.Logger = logger
	cfg.PanicHandler = ph
	cfg.Metrics = metrics
	return newTaskHandle(testDescriptor("per10msTask", 19, 0x500), cfg)
}

// TestTaskHandle_ExecAccountsRunTime verifies run time, cycles and metrics
// Main test items:
// 1. Exec returns the simulated callback duration
// 2. RunTime accumulates microseconds across cycles
// 3. One metrics record per cycle
func TestTaskHandle_ExecAccountsRunTime(t *testing.T) {
	clock := NewManualClock(testEpoch)
	metrics := &TestMetrics{}
	h := newTestHandle(clock, NewNoOpLogger(), &TestPanicHandler{}, metrics)
	ctx := context.Background()

	for _, d := range []time.Duration{2 * time.Millisecond, 500 * time.Microsecond} {
		got := h.Exec(ctx, func(ctx context.Context) { clock.Advance(d) })
		if got != d {
			t.Fatalf("Exec() = %v, want %v", got, d)
		}
	}

	if got := h.RunTime(); got != 2500 {
		t.Fatalf("RunTime() = %d, want 2500", got)
	}
	if got := h.Cycles(); got != 2 {
		t.Fatalf("Cycles() = %d, want 2", got)
	}
	cycles := metrics.Cycles()
	if len(cycles) != 2 || cycles[0].TaskName != "per10msTask" || cycles[0].Priority != 19 {
		t.Fatalf("metrics cycles = %+v, want two per10msTask records", cycles)
	}
}

// TestTaskHandle_ExecRecoversPanic verifies a panicking callback does not
// stop the loop
// Given: a callback that panics
// When: it runs through Exec
// Then: the panic handler and metrics see it, and the next Exec runs
func TestTaskHandle_ExecRecoversPanic(t *testing.T) {
	ph := &TestPanicHandler{}
	metrics := &TestMetrics{}
	h := newTestHandle(NewManualClock(testEpoch), NewNoOpLogger(), ph, metrics)
	ctx := context.Background()

	h.Exec(ctx, func(ctx context.Context) { panic("boom") })

	ran := false
	h.Exec(ctx, func(ctx context.Context) { ran = true })

	if !ran {
		t.Fatal("callback after panic did not run")
	}
	calls := ph.Calls()
	if len(calls) != 1 || calls[0].TaskName != "per10msTask" || calls[0].PanicInfo != "boom" {
		t.Fatalf("panic calls = %+v, want one boom from per10msTask", calls)
	}
	if got := h.Panics(); got != 1 {
		t.Fatalf("Panics() = %d, want 1", got)
	}
	if got := len(metrics.Panics()); got != 1 {
		t.Fatalf("metrics panics = %d, want 1", got)
	}

	last, ok := h.LastCycle()
	if !ok || last.Panicked || last.Seq != 2 {
		t.Fatalf("LastCycle() = %+v, %v, want seq 2 without panic", last, ok)
	}
	recent := h.RecentCycles(0)
	if len(recent) != 2 || !recent[1].Panicked {
		t.Fatalf("RecentCycles() = %+v, want the older cycle marked panicked", recent)
	}
}

// TestTaskHandle_StateDuringExec verifies Waiting/Running transitions
func TestTaskHandle_StateDuringExec(t *testing.T) {
	h := newTestHandle(SystemClock{}, NewNoOpLogger(), &TestPanicHandler{}, &NilMetrics{})

	if got := h.State(); got != TaskWaiting {
		t.Fatalf("State() = %v, want %v", got, TaskWaiting)
	}
	var during TaskState
	h.Exec(context.Background(), func(ctx context.Context) { during = h.State() })
	if during != TaskRunning {
		t.Fatalf("State() during Exec = %v, want %v", during, TaskRunning)
	}
	if got := h.State(); got != TaskWaiting {
		t.Fatalf("State() after Exec = %v, want %v", got, TaskWaiting)
	}
}

// TestTaskHandle_StackHighWaterMark verifies headroom tracking
// Main test items:
// 1. No usage reported: the full stack is free
// 2. The high-water mark follows the deepest report
// 3. Overflow clamps to zero and is logged once
func TestTaskHandle_StackHighWaterMark(t *testing.T) {
	logger := &recordingLogger{}
	h := newTestHandle(SystemClock{}, logger, &TestPanicHandler{}, &NilMetrics{})

	if got := h.StackHighWaterMark(); got != 0x500 {
		t.Fatalf("StackHighWaterMark() = %d, want %d", got, 0x500)
	}

	h.ReportStackUsage(0x200)
	h.ReportStackUsage(0x100)
	if got := h.StackHighWaterMark(); got != 0x300 {
		t.Fatalf("StackHighWaterMark() = %d, want %d", got, 0x300)
	}

	h.ReportStackUsage(0x600)
	h.ReportStackUsage(0x700)
	if got := h.StackHighWaterMark(); got != 0 {
		t.Fatalf("StackHighWaterMark() = %d, want 0", got)
	}
	if got := logger.count("ERROR stack overflow"); got != 1 {
		t.Fatalf("overflow log lines = %d, want 1", got)
	}
}

// TestTaskHandle_CurrentTaskInContext verifies callbacks can find their task
func TestTaskHandle_CurrentTaskInContext(t *testing.T) {
	k := NewKernel(context.Background(), KernelConfig{Logger: NewNoOpLogger()})
	defer k.Shutdown()

	found := make(chan *TaskHandle, 1)
	h, err := k.CreatePinnedTask(testDescriptor("encoderTask", 17, 0x800), func(ctx context.Context, h *TaskHandle) {
		h.Exec(ctx, func(ctx context.Context) {
			ReportStackUsage(ctx, 0x100)
			found <- GetCurrentTask(ctx)
		})
		<-ctx.Done()
	})
	if err != nil {
		t.Fatalf("CreatePinnedTask() error = %v", err)
	}

	select {
	case got := <-found:
		if got != h {
			t.Fatalf("GetCurrentTask() = %p, want %p", got, h)
		}
	case <-time.After(time.Second):
		t.Fatal("task body did not run")
	}
	if got := h.StackHighWaterMark(); got != 0x700 {
		t.Fatalf("StackHighWaterMark() = %d, want %d", got, 0x700)
	}
	if GetCurrentTask(context.Background()) != nil {
		t.Fatal("GetCurrentTask(background) != nil")
	}
}

// TestCycleHistory_Ring verifies the ring keeps the newest records
func TestCycleHistory_Ring(t *testing.T) {
	h := newCycleHistory(3)
	if _, ok := h.Last(); ok {
		t.Fatal("Last() ok on empty history")
	}
	for i := uint64(1); i <= 5; i++ {
		h.Add(CycleRecord{Seq: i})
	}

	recent := h.Recent(10)
	if len(recent) != 3 {
		t.Fatalf("len(Recent()) = %d, want 3", len(recent))
	}
	for i, want := range []uint64{5, 4, 3} {
		if recent[i].Seq != want {
			t.Fatalf("Recent()[%d].Seq = %d, want %d", i, recent[i].Seq, want)
		}
	}
	if got := h.Recent(1); len(got) != 1 || got[0].Seq != 5 {
		t.Fatalf("Recent(1) = %+v, want seq 5", got)
	}
}

func TestNiceFor(t *testing.T) {
	tests := []struct {
		priority TaskPriority
		want     int
	}{
		{PriorityMax - 1, 0},
		{PriorityMax, 0},
		{PriorityIdle, 19},
		{-3, 19},
		{12, 9},
	}
	for _, tt := range tests {
		if got := niceFor(tt.priority); got != tt.want {
			t.Errorf("niceFor(%d) = %d, want %d", tt.priority, got, tt.want)
		}
	}
}
