package health

import (
	"context"
	"errors"
	"time"

	"github.com/Swind/go-txcore/core"
)

// DefaultInterval is the reporting cadence.
const DefaultInterval = 5 * time.Second

// Source produces raw snapshots; CPU stats are filled in by the monitor.
type Source interface {
	Snapshot() Snapshot
}

// SourceFunc adapts a function to Source.
type SourceFunc func() Snapshot

func (f SourceFunc) Snapshot() Snapshot { return f() }

// Monitor samples a Source and fans the report out to its sinks.
type Monitor struct {
	Source   Source
	Sinks    []Sink
	Interval time.Duration
	Clock    core.Clock
	Logger   core.Logger
}

// NewMonitor creates a monitor with the default interval and system clock.
func NewMonitor(source Source, logger core.Logger, sinks ...Sink) *Monitor {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	return &Monitor{
		Source:   source,
		Sinks:    sinks,
		Interval: DefaultInterval,
		Clock:    core.SystemClock{},
		Logger:   core.WithTag(logger, "health"),
	}
}

// Snapshot samples the source and computes CPU shares.
func (m *Monitor) Snapshot() Snapshot {
	snap := m.Source.Snapshot()
	snap.CPU = ComputeCPUStats(snap.Tasks, snap.TotalRunTime)
	return snap
}

// ReportOnce takes one snapshot and emits it to every sink. Sink errors are
// logged and returned joined; they never stop the other sinks.
func (m *Monitor) ReportOnce(ctx context.Context) (Snapshot, error) {
	snap := m.Snapshot()

	var errs []error
	for _, sink := range m.Sinks {
		if err := sink.Emit(ctx, snap); err != nil {
			m.logger().Warn("health sink failed", core.F("error", err))
			errs = append(errs, err)
		}
	}
	return snap, errors.Join(errs...)
}

// Run reports every Interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	interval := m.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clock := m.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}

	for {
		_, _ = m.ReportOnce(ctx)
		if err := clock.Sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func (m *Monitor) logger() core.Logger {
	if m.Logger == nil {
		return core.NewNoOpLogger()
	}
	return m.Logger
}
