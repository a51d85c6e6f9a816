package hwtimer

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-txcore/core"
)

// ISR is an interrupt handler. It runs in interrupt context: it must not
// block, allocate or call task logic. arg is the value given at registration.
type ISR func(ictx *core.InterruptContext, arg int)

// Option configures a Group.
type Option func(*Group)

// WithLogger sets the group logger.
func WithLogger(logger core.Logger) Option {
	return func(g *Group) { g.logger = logger }
}

// WithClock sets the clock that paces the free-running counters.
func WithClock(clock core.Clock) Option {
	return func(g *Group) { g.clock = clock }
}

// WithManualDrive disables the background counters; alarms happen only
// through Fire. Used for deterministic simulation.
func WithManualDrive() Option {
	return func(g *Group) { g.manual = true }
}

type channel struct {
	idx        int
	cfg        Config
	configured bool
	running    bool
	counter    uint64
	alarm      uint64

	alarmEn atomic.Bool
	intrEn  atomic.Bool

	isr  ISR
	arg  int
	ictx *core.InterruptContext

	// dispatch serializes firings; handlers never re-enter.
	dispatch sync.Mutex

	expirations atomic.Uint64
	interrupts  atomic.Uint64
	updates     atomic.Uint64
	yields      atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// Group is a timer group with a shared interrupt status register.
type Group struct {
	id     int
	logger core.Logger
	clock  core.Clock
	manual bool

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	channels []*channel

	intStatus atomic.Uint32
}

// NewGroup creates timer group id with n channels.
func NewGroup(id, n int, opts ...Option) *Group {
	g := &Group{
		id:     id,
		logger: core.NewNoOpLogger(),
		clock:  core.SystemClock{},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = core.WithTag(g.logger, fmt.Sprintf("timer_group%d", id))
	g.ctx, g.cancel = context.WithCancel(context.Background())
	for i := range n {
		g.channels = append(g.channels, &channel{idx: i})
	}
	return g
}

// ID returns the group number.
func (g *Group) ID() int { return g.id }

func (g *Group) channel(idx int) (*channel, error) {
	if idx < 0 || idx >= len(g.channels) {
		return nil, fmt.Errorf("%w: group %d channel %d", ErrNoChannel, g.id, idx)
	}
	return g.channels[idx], nil
}

func (g *Group) configured(idx int) (*channel, error) {
	ch, err := g.channel(idx)
	if err != nil {
		return nil, err
	}
	if !ch.configured {
		return nil, fmt.Errorf("%w: group %d channel %d", ErrNotInitialized, g.id, idx)
	}
	return ch, nil
}

// Init configures a channel. The channel is left paused.
func (g *Group) Init(idx int, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	ch, err := g.channel(idx)
	if err != nil {
		return err
	}
	if ch.running {
		return fmt.Errorf("%w: channel %d reconfigured while running", ErrTimerConfig, idx)
	}
	ch.cfg = cfg
	ch.alarm = cfg.AlarmValue
	ch.configured = true
	ch.alarmEn.Store(cfg.AlarmEnable)
	return nil
}

// SetCounterValue loads the counter.
func (g *Group) SetCounterValue(idx int, v uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, err := g.configured(idx)
	if err != nil {
		return err
	}
	ch.counter = v
	return nil
}

// CounterValue returns the current counter of a channel.
func (g *Group) CounterValue(idx int) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, err := g.configured(idx)
	if err != nil {
		return 0, err
	}
	return ch.counter, nil
}

// SetAlarmValue sets the alarm count.
func (g *Group) SetAlarmValue(idx int, v uint64) error {
	if v == 0 {
		return fmt.Errorf("%w: zero alarm value", ErrTimerConfig)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, err := g.configured(idx)
	if err != nil {
		return err
	}
	ch.alarm = v
	return nil
}

// EnableIntr unmasks the channel interrupt.
func (g *Group) EnableIntr(idx int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, err := g.configured(idx)
	if err != nil {
		return err
	}
	ch.intrEn.Store(true)
	return nil
}

// RegisterISR installs fn for the channel. arg is passed back on every firing.
func (g *Group) RegisterISR(idx int, fn ISR, arg int) error {
	if fn == nil {
		return fmt.Errorf("%w: nil interrupt handler", ErrTimerConfig)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, err := g.configured(idx)
	if err != nil {
		return err
	}
	ch.isr = fn
	ch.arg = arg
	ch.ictx = core.NewInterruptContext(g.ctx, fmt.Sprintf("timer_group%d_t%d", g.id, idx))
	return nil
}

// Start lets the counter run.
func (g *Group) Start(idx int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch, err := g.configured(idx)
	if err != nil {
		return err
	}
	if ch.alarm == 0 {
		return fmt.Errorf("%w: channel %d started without an alarm value", ErrTimerConfig, idx)
	}
	if ch.running {
		return nil
	}
	ch.running = true

	period := Period(ch.cfg.Divider, ch.alarm)
	g.logger.Info("timer started",
		core.F("channel", idx),
		core.F("period", period))

	if g.manual {
		return nil
	}
	ctx, cancel := context.WithCancel(g.ctx)
	ch.cancel = cancel
	ch.done = make(chan struct{})
	go g.count(ctx, ch, period)
	return nil
}

// count is the free-running counter. Each period is an alarm match.
func (g *Group) count(ctx context.Context, ch *channel, period time.Duration) {
	defer close(ch.done)

	last := g.clock.Now()
	for {
		if err := core.DelayUntil(ctx, g.clock, &last, period); err != nil {
			return
		}
		g.expire(ch)
	}
}

// Pause halts the counter without clearing it.
func (g *Group) Pause(idx int) error {
	g.mu.Lock()
	ch, err := g.configured(idx)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	ch.running = false
	cancel, done := ch.cancel, ch.done
	ch.cancel, ch.done = nil, nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// Stop halts every channel. The group cannot be restarted.
func (g *Group) Stop() {
	for i := range g.channels {
		_ = g.Pause(i)
	}
	g.cancel()
}

// Fire simulates one alarm match on channel idx, as the counter would.
// It returns after the handler (if any) has run.
func (g *Group) Fire(idx int) error {
	g.mu.Lock()
	ch, err := g.configured(idx)
	if err == nil && !ch.running {
		err = fmt.Errorf("%w: channel %d not started", ErrNotInitialized, idx)
	}
	g.mu.Unlock()
	if err != nil {
		return err
	}
	g.expire(ch)
	return nil
}

// expire performs the hardware side of an alarm match.
func (g *Group) expire(ch *channel) {
	ch.expirations.Add(1)

	g.mu.Lock()
	ch.counter = 0 // auto-reload
	g.mu.Unlock()

	// The alarm disarms itself; the handler must re-arm it.
	if !ch.alarmEn.Swap(false) {
		return
	}
	g.intStatus.Or(1 << uint(ch.idx))

	if !ch.intrEn.Load() || ch.isr == nil {
		return
	}
	g.dispatch(ch)
}

func (g *Group) dispatch(ch *channel) {
	ch.dispatch.Lock()
	defer ch.dispatch.Unlock()

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("fault in interrupt context",
				core.F("source", ch.ictx.Source()),
				core.F("panic", r))
			panic(r)
		}
	}()

	ch.interrupts.Add(1)
	ch.ictx.Begin()
	ch.isr(ch.ictx, ch.arg)
	if ch.ictx.YieldRequested() {
		ch.yields.Add(1)
		runtime.Gosched()
	}
}

// =============================================================================
// Registers touched from interrupt context
// =============================================================================

// IntStatus reads the interrupt status register.
func (g *Group) IntStatus() uint32 { return g.intStatus.Load() }

// ClearIntr clears the status bit of channel idx only.
func (g *Group) ClearIntr(idx int) {
	g.intStatus.And(^(uint32(1) << uint(idx)))
}

// Update latches the counter value of channel idx.
func (g *Group) Update(idx int) {
	if idx >= 0 && idx < len(g.channels) {
		g.channels[idx].updates.Add(1)
	}
}

// EnableAlarm re-arms the alarm of channel idx.
func (g *Group) EnableAlarm(idx int) {
	if idx >= 0 && idx < len(g.channels) {
		g.channels[idx].alarmEn.Store(true)
	}
}

// AlarmEnabled reports whether channel idx is armed.
func (g *Group) AlarmEnabled(idx int) bool {
	if idx < 0 || idx >= len(g.channels) {
		return false
	}
	return g.channels[idx].alarmEn.Load()
}

// ChannelStats are the counters of one channel.
type ChannelStats struct {
	Expirations uint64
	Interrupts  uint64
	Updates     uint64
	Yields      uint64
}

// Stats returns the counters of channel idx.
func (g *Group) Stats(idx int) ChannelStats {
	if idx < 0 || idx >= len(g.channels) {
		return ChannelStats{}
	}
	ch := g.channels[idx]
	return ChannelStats{
		Expirations: ch.expirations.Load(),
		Interrupts:  ch.interrupts.Load(),
		Updates:     ch.updates.Load(),
		Yields:      ch.yields.Load(),
	}
}
