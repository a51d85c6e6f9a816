package core

import "errors"

var (
	// ErrOutOfHeap is returned when the kernel heap cannot hold a new object.
	ErrOutOfHeap = errors.New("kernel heap exhausted")

	// ErrInvalidDescriptor is returned for a task descriptor that cannot be created.
	ErrInvalidDescriptor = errors.New("invalid task descriptor")

	// ErrDuplicateTask is returned when a task name is already taken.
	ErrDuplicateTask = errors.New("duplicate task name")

	// ErrKernelStopped is returned after the kernel has been torn down.
	ErrKernelStopped = errors.New("kernel stopped")
)
