package prometheus

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Swind/go-txcore/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// DefaultCycleBuckets spans 50µs to 50ms, around the 10 ms control frame.
var DefaultCycleBuckets = []float64{
	50e-6, 100e-6, 250e-6, 500e-6,
	1e-3, 2.5e-3, 5e-3, 10e-3, 20e-3, 50e-3,
}

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	cycleDurationSeconds *prom.HistogramVec
	taskPanicTotal       *prom.CounterVec
	waitTimeoutTotal     *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "txcore"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = DefaultCycleBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Task callback duration in seconds.",
		Buckets:   buckets,
	}, []string{"task", "priority"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of recovered callback panics.",
	}, []string{"task"})
	timeoutVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "wait_timeout_total",
		Help:      "Total number of bounded waits that expired without a signal.",
	}, []string{"task"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if timeoutVec, err = registerCollector(reg, timeoutVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		cycleDurationSeconds: durationVec,
		taskPanicTotal:       panicVec,
		waitTimeoutTotal:     timeoutVec,
	}, nil
}

// RecordCycleDuration records one callback duration.
func (m *MetricsExporter) RecordCycleDuration(taskName string, priority core.TaskPriority, duration time.Duration) {
	if m == nil {
		return
	}
	m.cycleDurationSeconds.WithLabelValues(normalizeLabel(taskName, "unknown"), priorityLabel(priority)).Observe(duration.Seconds())
}

// RecordTaskPanic records callback panic events.
func (m *MetricsExporter) RecordTaskPanic(taskName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(taskName, "unknown")).Inc()
}

// RecordWaitTimeout records an expired bounded wait.
func (m *MetricsExporter) RecordWaitTimeout(taskName string) {
	if m == nil {
		return
	}
	m.waitTimeoutTotal.WithLabelValues(normalizeLabel(taskName, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func priorityLabel(priority core.TaskPriority) string {
	if priority < core.PriorityIdle || priority >= core.PriorityMax {
		return "unknown"
	}
	return strconv.Itoa(int(priority))
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
