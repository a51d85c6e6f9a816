package hwtimer

import (
	"sync/atomic"

	"github.com/Swind/go-txcore/core"
)

// TickISR is the heartbeat interrupt handler. It acknowledges the alarm,
// re-arms it and signals the tick semaphore.
type TickISR struct {
	Group *Group
	Tick  *core.BinarySemaphore

	// Channel is the channel this handler acknowledges. When several
	// channels share the status register only this one's bit is cleared.
	Channel int

	ticks  atomic.Uint64
	wakeup atomic.Uint64
}

// NewTickISR returns a handler for channel idx of group.
func NewTickISR(group *Group, idx int, tick *core.BinarySemaphore) *TickISR {
	return &TickISR{Group: group, Tick: tick, Channel: idx}
}

// Handle is the ISR entry point; arg is the channel index.
func (t *TickISR) Handle(ictx *core.InterruptContext, arg int) {
	status := t.Group.IntStatus()
	t.Group.Update(arg)

	if status&(1<<uint(arg)) != 0 && arg == t.Channel {
		t.Group.ClearIntr(arg)
	}

	// Re-arm: the alarm disabled itself when it fired.
	t.Group.EnableAlarm(arg)

	t.ticks.Add(1)
	if t.Tick.GiveFromISR(ictx) {
		t.wakeup.Add(1)
		ictx.YieldFromISR()
	}
}

// Ticks returns the number of handled interrupts.
func (t *TickISR) Ticks() uint64 { return t.ticks.Load() }

// Wakeups returns how many ticks woke a waiting task.
func (t *TickISR) Wakeups() uint64 { return t.wakeup.Load() }
