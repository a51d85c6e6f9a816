package tasks

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Swind/go-txcore/core"
)

// MixerLoop is the control-frame task. It wakes on an input-capture signal
// or after Timeout, whichever comes first, so it cycles at least every
// Timeout even with no input source.
//
// One cycle:
//  1. PreWait hooks (input processing)
//  2. bounded wait on Capture; a timeout is the normal idle path
//  3. record the last-run time
//  4. if Paused is set, skip the rest
//  5. Mix, then the capability Hooks, then the watchdog check, all timed
//     as one unit against MaxDuration
type MixerLoop struct {
	Capture *core.BinarySemaphore
	Timeout time.Duration
	Paused  *core.Flag

	PreWait Hooks
	Mix     core.Task
	Hooks   Hooks

	Heartbeat   *core.Heartbeat
	Watchdog    Watchdog
	MaxDuration *core.Watermark

	// Epoch is the origin of LastRunTime.
	Epoch time.Time

	lastRunMs atomic.Int64
	runs      atomic.Uint64
	skipped   atomic.Uint64
	timeouts  atomic.Uint64
	wdtResets atomic.Uint64
}

// Run is the task body.
func (m *MixerLoop) Run(ctx context.Context, h *core.TaskHandle) {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = MixerTimeout
	}
	h.Logger().Info("mixer task started", core.F("timeout", timeout))
	for {
		m.PreWait.Run(ctx)

		if !m.Capture.TakeTimeout(ctx, timeout) {
			if ctx.Err() != nil {
				return
			}
			m.timeouts.Add(1)
			h.Metrics().RecordWaitTimeout(h.Name())
		}

		m.Cycle(ctx, h)
	}
}

// Cycle runs the post-wait half of one iteration.
func (m *MixerLoop) Cycle(ctx context.Context, h *core.TaskHandle) {
	now := h.Clock().Now()
	m.lastRunMs.Store(now.Sub(m.Epoch).Milliseconds())

	if m.Paused != nil && m.Paused.IsSet() {
		m.skipped.Add(1)
		return
	}

	elapsed := h.Exec(ctx, m.compute)
	m.runs.Add(1)
	if m.MaxDuration != nil {
		m.MaxDuration.Observe(elapsed)
	}
}

func (m *MixerLoop) compute(ctx context.Context) {
	if m.Mix != nil {
		m.Mix(ctx)
	}
	m.Hooks.Run(ctx)

	if m.Heartbeat == nil {
		return
	}
	// Output pulses for this frame are ready.
	m.Heartbeat.Mark(core.HeartTimerPulses)
	if m.Heartbeat.CheckAndClear(core.HeartWDTCheck) && m.Watchdog != nil {
		m.Watchdog.Reset()
		m.wdtResets.Add(1)
	}
}

// LastRunTime returns the time of the last wake-up in ms since Epoch.
func (m *MixerLoop) LastRunTime() int64 { return m.lastRunMs.Load() }

// Runs returns the number of computed (unpaused) cycles.
func (m *MixerLoop) Runs() uint64 { return m.runs.Load() }

// Skipped returns the number of cycles skipped while paused.
func (m *MixerLoop) Skipped() uint64 { return m.skipped.Load() }

// Timeouts returns the number of waits that ended without a capture signal.
func (m *MixerLoop) Timeouts() uint64 { return m.timeouts.Load() }

// WatchdogResets returns how often the watchdog was fed.
func (m *MixerLoop) WatchdogResets() uint64 { return m.wdtResets.Load() }
