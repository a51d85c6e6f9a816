//go:build linux

package core

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pinCurrentThread binds the calling OS thread to core and applies the
// niceness for priority. The goroutine must already be locked to its thread.
func pinCurrentThread(core CoreID, priority TaskPriority) error {
	tid := unix.Gettid()

	if core != NoAffinity {
		var set unix.CPUSet
		set.Zero()
		set.Set(int(core))
		if err := unix.SchedSetaffinity(tid, &set); err != nil {
			return fmt.Errorf("sched_setaffinity %s: %w", core, err)
		}
	}

	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, niceFor(priority)); err != nil {
		return fmt.Errorf("setpriority %d: %w", priority, err)
	}
	return nil
}
