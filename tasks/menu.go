package tasks

import (
	"context"
	"time"

	"github.com/Swind/go-txcore/core"
)

// MenuLoop runs Init once, then PerMain on an absolute-deadline period.
// A late cycle does not shift later deadlines.
type MenuLoop struct {
	Init    core.Task
	PerMain core.Task
	Period  time.Duration
}

// Run is the task body.
func (l *MenuLoop) Run(ctx context.Context, h *core.TaskHandle) {
	period := l.Period
	if period <= 0 {
		period = MenuPeriod
	}
	h.Logger().Info("starting menus task")

	if l.Init != nil {
		h.Exec(ctx, l.Init)
	}

	clock := h.Clock()
	lastWake := clock.Now()
	for {
		if err := core.DelayUntil(ctx, clock, &lastWake, period); err != nil {
			return
		}
		h.Exec(ctx, l.PerMain)
	}
}
