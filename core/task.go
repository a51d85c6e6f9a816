package core

import (
	"context"
	"fmt"
	"time"
)

// Task is the unit of periodic work handed to a task loop (Closure).
// It must be safe to call repeatedly at its declared cadence and must not
// block beyond its time budget.
type Task func(ctx context.Context)

// TaskBody is the infinite loop hosted by a pinned task. It returns only
// on process teardown.
type TaskBody func(ctx context.Context, h *TaskHandle)

// =============================================================================
// Priority and core affinity
// =============================================================================

// TaskPriority is an ordinal; higher values are more urgent.
type TaskPriority int

const (
	// PriorityIdle is the priority of the idle/reporting context.
	PriorityIdle TaskPriority = 0

	// PriorityMax is one above the highest usable priority.
	PriorityMax TaskPriority = 25
)

// CoreID selects the processing core a task is pinned to.
type CoreID int

const (
	// NoAffinity lets the task run on any core.
	NoAffinity CoreID = -1
	// CoreA is the protocol core (core 0).
	CoreA CoreID = 0
	// CoreB is the application core (core 1).
	CoreB CoreID = 1
)

func (c CoreID) String() string {
	switch c {
	case NoAffinity:
		return "any"
	case CoreA:
		return "core0"
	case CoreB:
		return "core1"
	default:
		return fmt.Sprintf("core%d", int(c))
	}
}

// WaitKind describes what a task blocks on between cycles.
type WaitKind int

const (
	// WaitForever blocks on a synchronization object with no timeout.
	WaitForever WaitKind = iota
	// WaitBounded blocks on a synchronization object with a timeout.
	WaitBounded
	// WaitUntil sleeps until an absolute deadline (drift-free period).
	WaitUntil
)

func (w WaitKind) String() string {
	switch w {
	case WaitForever:
		return "forever"
	case WaitBounded:
		return "bounded"
	case WaitUntil:
		return "until"
	default:
		return "unknown"
	}
}

// TaskDescriptor is created once at bring-up and never changes afterwards.
type TaskDescriptor struct {
	Name      string
	Priority  TaskPriority
	Core      CoreID
	StackSize uint32
	Wait      WaitKind
	Periodic  bool

	// Period is the cadence of WaitUntil tasks.
	Period time.Duration

	// Timeout bounds WaitBounded tasks.
	Timeout time.Duration
}

// Validate reports descriptor errors that make task creation impossible.
func (d TaskDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty task name", ErrInvalidDescriptor)
	}
	if d.StackSize == 0 {
		return fmt.Errorf("%w: task %s has no stack", ErrInvalidDescriptor, d.Name)
	}
	if d.Priority <= PriorityIdle || d.Priority >= PriorityMax {
		return fmt.Errorf("%w: task %s priority %d out of range", ErrInvalidDescriptor, d.Name, d.Priority)
	}
	if d.Core < NoAffinity || d.Core > CoreB {
		return fmt.Errorf("%w: task %s pinned to unknown core %d", ErrInvalidDescriptor, d.Name, d.Core)
	}
	switch d.Wait {
	case WaitBounded:
		if d.Timeout <= 0 {
			return fmt.Errorf("%w: task %s needs a wait timeout", ErrInvalidDescriptor, d.Name)
		}
	case WaitUntil:
		if d.Period <= 0 {
			return fmt.Errorf("%w: task %s needs a period", ErrInvalidDescriptor, d.Name)
		}
	}
	return nil
}

// =============================================================================
// Context Helper
// =============================================================================
type taskHandleKeyType struct{}

var taskHandleKey taskHandleKeyType

// GetCurrentTask returns the handle of the task running ctx, or nil.
func GetCurrentTask(ctx context.Context) *TaskHandle {
	if v := ctx.Value(taskHandleKey); v != nil {
		return v.(*TaskHandle)
	}
	return nil
}

// ReportStackUsage records the stack depth reached by the current task.
// Callbacks running outside a pinned task are ignored.
func ReportStackUsage(ctx context.Context, bytes uint32) {
	if h := GetCurrentTask(ctx); h != nil {
		h.ReportStackUsage(bytes)
	}
}
