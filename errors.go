package txcore

import (
	"errors"
	"fmt"
)

// ErrNilTaskHandle is a task creation that reported success without a handle.
var ErrNilTaskHandle = errors.New("nil task handle")

// Step names a bring-up phase.
type Step string

const (
	StepConfig     Step = "validate config"
	StepSemaphores Step = "create semaphores"
	StepTasks      Step = "create tasks"
	StepTimer      Step = "start timer"
)

// FatalError is a bring-up failure. Bring-up is never retried.
type FatalError struct {
	Step   Step
	Object string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Object == "" {
		return fmt.Sprintf("bring-up failed: %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("bring-up failed: %s: %s: %v", e.Step, e.Object, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
