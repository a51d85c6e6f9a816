package tasks

import (
	"context"
	"time"

	"github.com/Swind/go-txcore/core"
)

// EncoderLoop polls the rotary encoder on a fixed absolute-deadline cadence.
type EncoderLoop struct {
	Poll   core.Task
	Period time.Duration
}

// Run is the task body.
func (l *EncoderLoop) Run(ctx context.Context, h *core.TaskHandle) {
	period := l.Period
	if period <= 0 {
		period = EncoderPeriod
	}

	clock := h.Clock()
	lastWake := clock.Now()
	for {
		if err := core.DelayUntil(ctx, clock, &lastWake, period); err != nil {
			return
		}
		h.Exec(ctx, l.Poll)
	}
}
