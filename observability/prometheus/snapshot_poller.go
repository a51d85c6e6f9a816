package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-txcore/health"
	prom "github.com/prometheus/client_golang/prometheus"
)

// HealthSnapshotProvider provides health snapshots, CPU shares included.
type HealthSnapshotProvider interface {
	Snapshot() health.Snapshot
}

// SemaphoreStatsProvider provides signal counters of one semaphore.
type SemaphoreStatsProvider interface {
	Gives() uint64
	Coalesced() uint64
	Timeouts() uint64
}

// SnapshotPoller periodically exports health snapshots and semaphore
// counters into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	sourcesMu sync.RWMutex
	sources   map[string]HealthSnapshotProvider

	semaphoresMu sync.RWMutex
	semaphores   map[string]SemaphoreStatsProvider

	stackHighWater   *prom.GaugeVec
	taskRunTime      *prom.GaugeVec
	taskCPUPercent   *prom.GaugeVec
	maxMixerDuration *prom.GaugeVec
	pulsesPaused     *prom.GaugeVec

	semGives     *prom.GaugeVec
	semCoalesced *prom.GaugeVec
	semTimeouts  *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	stackHighWater := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "txcore",
		Name:      "task_stack_high_water_bytes",
		Help:      "Minimum free stack seen per task.",
	}, []string{"system", "task"})
	taskRunTime := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "txcore",
		Name:      "task_run_time_microseconds",
		Help:      "Accumulated callback run time per task.",
	}, []string{"system", "task"})
	taskCPUPercent := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "txcore",
		Name:      "task_cpu_percent",
		Help:      "Share of total run time per task, rounded down.",
	}, []string{"system", "task"})
	maxMixerDuration := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "txcore",
		Name:      "max_mixer_duration_seconds",
		Help:      "Longest observed mixer cycle this session.",
	}, []string{"system"})
	pulsesPaused := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "txcore",
		Name:      "pulses_paused",
		Help:      "Pulses paused state (1=paused, 0=running).",
	}, []string{"system"})

	semGives := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "txcore",
		Name:      "semaphore_gives",
		Help:      "Signals posted per semaphore.",
	}, []string{"semaphore"})
	semCoalesced := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "txcore",
		Name:      "semaphore_coalesced",
		Help:      "Signals merged into an already pending one.",
	}, []string{"semaphore"})
	semTimeouts := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "txcore",
		Name:      "semaphore_timeouts",
		Help:      "Bounded waits that expired per semaphore.",
	}, []string{"semaphore"})

	var err error
	if stackHighWater, err = registerCollector(reg, stackHighWater); err != nil {
		return nil, err
	}
	if taskRunTime, err = registerCollector(reg, taskRunTime); err != nil {
		return nil, err
	}
	if taskCPUPercent, err = registerCollector(reg, taskCPUPercent); err != nil {
		return nil, err
	}
	if maxMixerDuration, err = registerCollector(reg, maxMixerDuration); err != nil {
		return nil, err
	}
	if pulsesPaused, err = registerCollector(reg, pulsesPaused); err != nil {
		return nil, err
	}
	if semGives, err = registerCollector(reg, semGives); err != nil {
		return nil, err
	}
	if semCoalesced, err = registerCollector(reg, semCoalesced); err != nil {
		return nil, err
	}
	if semTimeouts, err = registerCollector(reg, semTimeouts); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:         interval,
		sources:          make(map[string]HealthSnapshotProvider),
		semaphores:       make(map[string]SemaphoreStatsProvider),
		stackHighWater:   stackHighWater,
		taskRunTime:      taskRunTime,
		taskCPUPercent:   taskCPUPercent,
		maxMixerDuration: maxMixerDuration,
		pulsesPaused:     pulsesPaused,
		semGives:         semGives,
		semCoalesced:     semCoalesced,
		semTimeouts:      semTimeouts,
	}, nil
}

// AddSystem adds or replaces a health snapshot provider by name.
func (p *SnapshotPoller) AddSystem(name string, provider HealthSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "system")
	p.sourcesMu.Lock()
	p.sources[name] = provider
	p.sourcesMu.Unlock()
}

// AddSemaphore adds or replaces a semaphore stats provider by name.
func (p *SnapshotPoller) AddSemaphore(name string, provider SemaphoreStatsProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "semaphore")
	p.semaphoresMu.Lock()
	p.semaphores[name] = provider
	p.semaphoresMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.sourcesMu.RLock()
	for name, provider := range p.sources {
		snap := provider.Snapshot()
		for _, t := range snap.Tasks {
			p.stackHighWater.WithLabelValues(name, t.Name).Set(float64(t.StackHighWater))
			p.taskRunTime.WithLabelValues(name, t.Name).Set(float64(t.RunTime))
		}
		for _, c := range snap.CPU {
			p.taskCPUPercent.WithLabelValues(name, c.Name).Set(float64(c.Percent))
		}
		p.maxMixerDuration.WithLabelValues(name).Set(float64(snap.MaxMixerDurationUs) / 1e6)
		if snap.PulsesPaused {
			p.pulsesPaused.WithLabelValues(name).Set(1)
		} else {
			p.pulsesPaused.WithLabelValues(name).Set(0)
		}
	}
	p.sourcesMu.RUnlock()

	p.semaphoresMu.RLock()
	for name, provider := range p.semaphores {
		p.semGives.WithLabelValues(name).Set(float64(provider.Gives()))
		p.semCoalesced.WithLabelValues(name).Set(float64(provider.Coalesced()))
		p.semTimeouts.WithLabelValues(name).Set(float64(provider.Timeouts()))
	}
	p.semaphoresMu.RUnlock()
}
