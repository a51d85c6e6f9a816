package core

// TaskState is the state of a task loop.
type TaskState int32

const (
	// TaskWaiting: blocked on the task's wait primitive.
	TaskWaiting TaskState = iota

	// TaskRunning: executing a callback.
	TaskRunning

	// TaskStopped: the loop has returned (process teardown only).
	TaskStopped
)

func (s TaskState) String() string {
	switch s {
	case TaskWaiting:
		return "waiting"
	case TaskRunning:
		return "running"
	case TaskStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TaskStatus is a point-in-time view of one task, as returned by
// Kernel.SystemState.
type TaskStatus struct {
	Name           string
	Priority       TaskPriority
	Core           CoreID
	StackSize      uint32
	StackHighWater uint32 // minimum free stack seen, in bytes
	State          TaskState
	RunTime        uint64 // accumulated callback time, microseconds
	Cycles         uint64
	Panics         uint64
}
