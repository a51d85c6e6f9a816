package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task callback panics
// =============================================================================

// PanicHandler is called when a periodic callback panics inside a task.
// The task loop keeps running after the handler returns.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a callback panics.
	//
	// Parameters:
	// - ctx: The context of the task that was running the callback
	// - taskName: The name of the task where the panic occurred
	// - core: The core the task is pinned to
	// - panicInfo: The panic value recovered from the callback
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, taskName string, core CoreID, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs the panic through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs panic information at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, taskName string, core CoreID, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task callback panic",
		F("task", taskName),
		F("core", core),
		F("panic", panicInfo),
		F("stack", string(stackTrace)))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called from task loops and must be non-blocking and fast.
type Metrics interface {
	// RecordCycleDuration records how long one callback invocation took.
	RecordCycleDuration(taskName string, priority TaskPriority, duration time.Duration)

	// RecordTaskPanic records that a callback panicked.
	RecordTaskPanic(taskName string, panicInfo any)

	// RecordWaitTimeout records a bounded wait that expired without a signal.
	RecordWaitTimeout(taskName string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordCycleDuration is a no-op.
func (m *NilMetrics) RecordCycleDuration(taskName string, priority TaskPriority, duration time.Duration) {
}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(taskName string, panicInfo any) {
}

// RecordWaitTimeout is a no-op.
func (m *NilMetrics) RecordWaitTimeout(taskName string) {
}

// =============================================================================
// KernelConfig: Configuration for Kernel
// =============================================================================

// KernelConfig holds configuration options for a Kernel.
// All handlers are optional; if not provided, default implementations will be used.
type KernelConfig struct {
	// HeapSize bounds the memory available for semaphores and task stacks.
	// Zero means unbounded.
	HeapSize int

	// Clock provides time for run-time accounting. Defaults to SystemClock.
	Clock Clock

	// Logger receives diagnostics. Defaults to DefaultLogger.
	Logger Logger

	// PanicHandler is called when a callback panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics records per-cycle metrics. Defaults to NilMetrics.
	Metrics Metrics

	// PinThreads pins each task's OS thread to its core and applies a
	// scheduling niceness derived from its priority, where the platform allows.
	PinThreads bool

	// HistorySize is the number of cycle records kept per task.
	HistorySize int
}

// DefaultKernelConfig returns a config with default handlers.
func DefaultKernelConfig() KernelConfig {
	logger := NewDefaultLogger()
	return KernelConfig{
		Clock:        SystemClock{},
		Logger:       logger,
		PanicHandler: &DefaultPanicHandler{Logger: logger},
		Metrics:      &NilMetrics{},
		HistorySize:  defaultCycleHistoryCapacity,
	}
}
