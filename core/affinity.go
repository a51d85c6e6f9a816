package core

import "errors"

// errPinningUnsupported is returned where the platform has no thread affinity API.
var errPinningUnsupported = errors.New("thread pinning not supported on this platform")

// niceFor maps a task priority onto a Unix nice value in [0, 19].
// The most urgent priority keeps nice 0; lower priorities are niced up so no
// privilege is needed.
func niceFor(priority TaskPriority) int {
	if priority >= PriorityMax-1 {
		return 0
	}
	if priority <= PriorityIdle {
		return 19
	}
	return int(PriorityMax-1-priority) * 19 / int(PriorityMax-1)
}
