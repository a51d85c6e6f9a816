package tasks

import (
	"context"

	"github.com/Swind/go-txcore/core"
)

// Per10msLoop runs Per10ms once for every consumed tick.
// Ticks that arrive while it is busy merge into one pending tick.
type Per10msLoop struct {
	Tick      *core.BinarySemaphore
	Per10ms   core.Task
	Heartbeat *core.Heartbeat
}

// Run is the task body.
func (l *Per10msLoop) Run(ctx context.Context, h *core.TaskHandle) {
	for {
		if err := l.Tick.Take(ctx); err != nil {
			return
		}
		h.Exec(ctx, l.Per10ms)
		if l.Heartbeat != nil {
			l.Heartbeat.Mark(core.HeartTimer10ms)
		}
	}
}
