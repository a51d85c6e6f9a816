package hwtimer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-txcore/core"
)

// Watchdog is a software watchdog. If Reset is not called within the
// timeout, onExpire runs on its own goroutine and the watchdog re-arms.
type Watchdog struct {
	timeout  time.Duration
	onExpire func()
	logger   core.Logger

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool

	resets      atomic.Uint64
	expirations atomic.Uint64
}

// NewWatchdog creates a stopped watchdog. onExpire may be nil.
func NewWatchdog(timeout time.Duration, onExpire func(), logger core.Logger) *Watchdog {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	return &Watchdog{
		timeout:  timeout,
		onExpire: onExpire,
		logger:   core.WithTag(logger, "wdt"),
		stopped:  true,
	}
}

// Start arms the watchdog.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		return
	}
	w.stopped = false
	w.timer = time.AfterFunc(w.timeout, w.expire)
}

// Reset feeds the watchdog.
func (w *Watchdog) Reset() {
	w.resets.Add(1)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.timer.Reset(w.timeout)
}

// Stop disarms the watchdog.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	w.timer.Stop()
}

func (w *Watchdog) expire() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.timer.Reset(w.timeout)
	w.mu.Unlock()

	n := w.expirations.Add(1)
	w.logger.Error("watchdog expired",
		core.F("timeout", w.timeout),
		core.F("count", n))
	if w.onExpire != nil {
		w.onExpire()
	}
}

// Resets returns how many times the watchdog was fed.
func (w *Watchdog) Resets() uint64 { return w.resets.Load() }

// Expirations returns how many times the watchdog expired.
func (w *Watchdog) Expirations() uint64 { return w.expirations.Load() }
