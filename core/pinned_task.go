package core

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// TaskHandle is a pinned task: one dedicated goroutine locked to its own OS
// thread, hosting a TaskBody loop for the life of the process.
//
// Key differences from a plain goroutine:
//   - Every callback goes through Exec, which accounts run time, records the
//     cycle and recovers callback panics so the loop keeps its cadence.
//   - The loop state is observable (Waiting/Running) for the health monitor.
//   - The stack budget from the descriptor is tracked against reported usage.
type TaskHandle struct {
	desc TaskDescriptor

	clock        Clock
	logger       Logger
	panicHandler PanicHandler
	metrics      Metrics

	state      atomic.Int32
	runTimeUs  atomic.Uint64
	stackPeak  atomic.Uint32
	cycles     atomic.Uint64
	panics     atomic.Uint64
	overflowed atomic.Bool

	history *cycleHistory

	stopped chan struct{}
}

func newTaskHandle(desc TaskDescriptor, cfg KernelConfig) *TaskHandle {
	h := &TaskHandle{
		desc:         desc,
		clock:        cfg.Clock,
		logger:       WithTag(cfg.Logger, desc.Name),
		panicHandler: cfg.PanicHandler,
		metrics:      cfg.Metrics,
		history:      newCycleHistory(cfg.HistorySize),
		stopped:      make(chan struct{}),
	}
	h.state.Store(int32(TaskWaiting))
	return h
}

// run occupies the dedicated goroutine until body returns.
func (h *TaskHandle) run(ctx context.Context, body TaskBody, pin bool) {
	defer close(h.stopped)
	defer h.state.Store(int32(TaskStopped))

	runtime.LockOSThread()
	pinned := false
	if pin {
		if err := pinCurrentThread(h.desc.Core, h.desc.Priority); err != nil {
			h.logger.Warn("thread pinning unavailable, running unpinned",
				F("core", h.desc.Core),
				F("error", err))
		} else {
			pinned = true
		}
	}
	if !pinned {
		defer runtime.UnlockOSThread()
	}
	// A pinned thread keeps its affinity and niceness, so it is left locked
	// and the runtime discards it when the goroutine exits.

	runCtx := context.WithValue(ctx, taskHandleKey, h)
	body(runCtx, h)
}

// Exec runs one callback invocation and returns how long it took.
// A panicking callback is reported and counted; the caller's loop continues.
func (h *TaskHandle) Exec(ctx context.Context, task Task) time.Duration {
	h.state.Store(int32(TaskRunning))
	defer h.state.Store(int32(TaskWaiting))

	start := h.clock.Now()
	panicked := h.invoke(ctx, task)
	end := h.clock.Now()

	elapsed := end.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	h.runTimeUs.Add(uint64(elapsed.Microseconds()))
	seq := h.cycles.Add(1)

	h.history.Add(CycleRecord{
		Seq:        seq,
		TaskName:   h.desc.Name,
		Priority:   h.desc.Priority,
		StartedAt:  start,
		FinishedAt: end,
		Duration:   elapsed,
		Panicked:   panicked,
	})
	h.metrics.RecordCycleDuration(h.desc.Name, h.desc.Priority, elapsed)
	return elapsed
}

func (h *TaskHandle) invoke(ctx context.Context, task Task) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			h.panics.Add(1)
			h.panicHandler.HandlePanic(ctx, h.desc.Name, h.desc.Core, r, debug.Stack())
			h.metrics.RecordTaskPanic(h.desc.Name, r)
		}
	}()
	task(ctx)
	return false
}

// ReportStackUsage records that the task reached bytes of stack depth.
// Exceeding the budget is logged once as an overflow.
func (h *TaskHandle) ReportStackUsage(bytes uint32) {
	for {
		cur := h.stackPeak.Load()
		if bytes <= cur {
			break
		}
		if h.stackPeak.CompareAndSwap(cur, bytes) {
			break
		}
	}
	if bytes > h.desc.StackSize && h.overflowed.CompareAndSwap(false, true) {
		h.logger.Error("stack overflow",
			F("used", bytes),
			F("size", h.desc.StackSize))
	}
}

// StackHighWaterMark returns the minimum free stack seen so far, in bytes.
func (h *TaskHandle) StackHighWaterMark() uint32 {
	peak := h.stackPeak.Load()
	if peak >= h.desc.StackSize {
		return 0
	}
	return h.desc.StackSize - peak
}

// Descriptor returns the immutable descriptor the task was created with.
func (h *TaskHandle) Descriptor() TaskDescriptor { return h.desc }

// Name returns the task name.
func (h *TaskHandle) Name() string { return h.desc.Name }

// Logger returns the task's tagged logger.
func (h *TaskHandle) Logger() Logger { return h.logger }

// Clock returns the kernel clock.
func (h *TaskHandle) Clock() Clock { return h.clock }

// Metrics returns the kernel metrics sink.
func (h *TaskHandle) Metrics() Metrics { return h.metrics }

// State returns the current loop state.
func (h *TaskHandle) State() TaskState { return TaskState(h.state.Load()) }

// RunTime returns the accumulated callback time in microseconds.
func (h *TaskHandle) RunTime() uint64 { return h.runTimeUs.Load() }

// Cycles returns the number of completed callback invocations.
func (h *TaskHandle) Cycles() uint64 { return h.cycles.Load() }

// Panics returns the number of recovered callback panics.
func (h *TaskHandle) Panics() uint64 { return h.panics.Load() }

// RecentCycles returns up to limit cycle records, newest first.
func (h *TaskHandle) RecentCycles(limit int) []CycleRecord {
	return h.history.Recent(limit)
}

// LastCycle returns the most recent cycle record.
func (h *TaskHandle) LastCycle() (CycleRecord, bool) {
	return h.history.Last()
}

// Done is closed once the task loop has returned.
func (h *TaskHandle) Done() <-chan struct{} { return h.stopped }

// Status returns a snapshot of the task.
func (h *TaskHandle) Status() TaskStatus {
	return TaskStatus{
		Name:           h.desc.Name,
		Priority:       h.desc.Priority,
		Core:           h.desc.Core,
		StackSize:      h.desc.StackSize,
		StackHighWater: h.StackHighWaterMark(),
		State:          h.State(),
		RunTime:        h.RunTime(),
		Cycles:         h.Cycles(),
		Panics:         h.Panics(),
	}
}
