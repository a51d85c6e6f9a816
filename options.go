package txcore

import "github.com/Swind/go-txcore/core"

type options struct {
	logger       core.Logger
	metrics      core.Metrics
	clock        core.Clock
	panicHandler core.PanicHandler
	heapSize     int
	kernel       *core.Kernel
	manualTimer  bool
}

// Option configures BringUp.
type Option func(*options)

// WithLogger sets the diagnostics sink.
func WithLogger(logger core.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the per-cycle metrics sink.
func WithMetrics(metrics core.Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithClock sets the clock used for run-time accounting, periods and the
// heartbeat timer.
func WithClock(clock core.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithPanicHandler sets the callback panic handler.
func WithPanicHandler(h core.PanicHandler) Option {
	return func(o *options) { o.panicHandler = h }
}

// WithHeapSize overrides the configured kernel heap size.
func WithHeapSize(n int) Option {
	return func(o *options) { o.heapSize = n }
}

// WithKernel makes bring-up allocate from an existing kernel instead of
// creating one. The heap, clock and logger options are then ignored.
func WithKernel(k *core.Kernel) Option {
	return func(o *options) { o.kernel = k }
}

// WithManualTimer leaves the heartbeat timer without a free-running
// counter; ticks happen only through Timer().Fire.
func WithManualTimer() Option {
	return func(o *options) { o.manualTimer = true }
}
