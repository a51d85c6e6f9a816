package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Approximate control-block sizes charged against the kernel heap.
const (
	semaphoreHeapCost = 88
	taskControlBlock  = 344
)

// Kernel owns the fixed task set and its synchronization objects.
//
// Objects are created once at bring-up and live until Shutdown; there is no
// per-object deletion. Creation draws from a bounded heap so exhaustion
// surfaces as ErrOutOfHeap instead of an unbounded allocation.
type Kernel struct {
	cfg KernelConfig

	ctx    context.Context
	cancel context.CancelFunc
	start  time.Time

	mu         sync.Mutex
	heapUsed   int
	semaphores []*BinarySemaphore
	tasks      []*TaskHandle
	byName     map[string]*TaskHandle
	stopped    bool

	shutdownOnce sync.Once
}

// NewKernel creates a kernel. Task loops are canceled when ctx is done or
// Shutdown is called.
func NewKernel(ctx context.Context, cfg KernelConfig) *Kernel {
	defaults := DefaultKernelConfig()
	if cfg.Clock == nil {
		cfg.Clock = defaults.Clock
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}
	if cfg.PanicHandler == nil {
		cfg.PanicHandler = &DefaultPanicHandler{Logger: cfg.Logger}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = defaults.Metrics
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaults.HistorySize
	}

	kctx, cancel := context.WithCancel(ctx)
	return &Kernel{
		cfg:    cfg,
		ctx:    kctx,
		cancel: cancel,
		start:  cfg.Clock.Now(),
		byName: make(map[string]*TaskHandle),
	}
}

// allocate charges n bytes to the heap. Caller holds k.mu.
func (k *Kernel) allocate(n int, what string) error {
	if k.stopped {
		return ErrKernelStopped
	}
	if k.cfg.HeapSize > 0 && k.heapUsed+n > k.cfg.HeapSize {
		return fmt.Errorf("%w: %s needs %d bytes, %d free",
			ErrOutOfHeap, what, n, k.cfg.HeapSize-k.heapUsed)
	}
	k.heapUsed += n
	return nil
}

// CreateBinarySemaphore allocates an empty binary semaphore.
func (k *Kernel) CreateBinarySemaphore(name string) (*BinarySemaphore, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.allocate(semaphoreHeapCost, "semaphore "+name); err != nil {
		return nil, err
	}
	sem := NewBinarySemaphore(name)
	k.semaphores = append(k.semaphores, sem)
	return sem, nil
}

// CreatePinnedTask allocates the task's stack and control block and starts
// body on a dedicated goroutine. The task begins in the Waiting state.
func (k *Kernel) CreatePinnedTask(desc TaskDescriptor, body TaskBody) (*TaskHandle, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("%w: task %s has no body", ErrInvalidDescriptor, desc.Name)
	}

	k.mu.Lock()
	if _, dup := k.byName[desc.Name]; dup {
		k.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, desc.Name)
	}
	if err := k.allocate(int(desc.StackSize)+taskControlBlock, "task "+desc.Name); err != nil {
		k.mu.Unlock()
		return nil, err
	}
	h := newTaskHandle(desc, k.cfg)
	k.tasks = append(k.tasks, h)
	k.byName[desc.Name] = h
	k.mu.Unlock()

	k.cfg.Logger.Debug("task created",
		F("task", desc.Name),
		F("priority", desc.Priority),
		F("core", desc.Core),
		F("stack", desc.StackSize))

	go h.run(k.ctx, body, k.cfg.PinThreads)
	return h, nil
}

// Task returns the task with the given name, or nil.
func (k *Kernel) Task(name string) *TaskHandle {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.byName[name]
}

// Tasks returns the tasks in creation order.
func (k *Kernel) Tasks() []*TaskHandle {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*TaskHandle, len(k.tasks))
	copy(out, k.tasks)
	return out
}

// TaskCount returns the number of tasks created.
func (k *Kernel) TaskCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.tasks)
}

// Semaphores returns the semaphores in creation order.
func (k *Kernel) Semaphores() []*BinarySemaphore {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*BinarySemaphore, len(k.semaphores))
	copy(out, k.semaphores)
	return out
}

// HeapUsed returns the bytes charged so far.
func (k *Kernel) HeapUsed() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.heapUsed
}

// HeapFree returns the bytes left, or -1 for an unbounded heap.
func (k *Kernel) HeapFree() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cfg.HeapSize <= 0 {
		return -1
	}
	return k.cfg.HeapSize - k.heapUsed
}

// TotalRunTime returns microseconds elapsed since the kernel started.
// It is the denominator for per-task CPU shares.
func (k *Kernel) TotalRunTime() uint64 {
	d := k.cfg.Clock.Now().Sub(k.start)
	if d < 0 {
		return 0
	}
	return uint64(d.Microseconds())
}

// SystemState returns a status snapshot of every task in creation order.
func (k *Kernel) SystemState() []TaskStatus {
	tasks := k.Tasks()
	out := make([]TaskStatus, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Status())
	}
	return out
}

// Clock returns the kernel clock.
func (k *Kernel) Clock() Clock { return k.cfg.Clock }

// Logger returns the kernel logger.
func (k *Kernel) Logger() Logger { return k.cfg.Logger }

// Metrics returns the kernel metrics sink.
func (k *Kernel) Metrics() Metrics { return k.cfg.Metrics }

// Context is canceled on teardown.
func (k *Kernel) Context() context.Context { return k.ctx }

// StartTime returns when the kernel was created.
func (k *Kernel) StartTime() time.Time { return k.start }

// Shutdown cancels every task loop and waits for them to return.
// This is process teardown only.
func (k *Kernel) Shutdown() {
	k.shutdownOnce.Do(func() {
		k.mu.Lock()
		k.stopped = true
		tasks := make([]*TaskHandle, len(k.tasks))
		copy(tasks, k.tasks)
		k.mu.Unlock()

		k.cancel()
		for _, t := range tasks {
			<-t.Done()
		}
	})
}
