package txcore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Swind/go-txcore/config"
	"github.com/Swind/go-txcore/core"
	"github.com/Swind/go-txcore/health"
	"github.com/Swind/go-txcore/hwtimer"
	"github.com/Swind/go-txcore/tasks"
)

// Semaphore names.
const (
	AudioSemaphore   = "audio"
	CaptureSemaphore = "ppm"
	TickSemaphore    = "per10ms"
)

// Application holds the opaque periodic callbacks driven by the task set.
// Nil callbacks are no-ops.
type Application struct {
	// Init runs once on the menu task before its first PerMain. It usually
	// ends with FromContext(ctx).ResumePulses().
	Init        core.Task
	PerMain     core.Task
	Mix         core.Task
	Per10ms     core.Task
	AudioWakeup core.Task
	EncoderPoll core.Task

	// PreWait hooks run on the mixer before each wait; Hooks run after Mix
	// inside the mixer timing budget.
	PreWait tasks.Hooks
	Hooks   tasks.Hooks

	AudioDriver tasks.AudioDriver
	Watchdog    tasks.Watchdog
}

type systemKeyType struct{}

var systemKey systemKeyType

// FromContext returns the System running ctx, or nil outside its tasks.
func FromContext(ctx context.Context) *System {
	if v := ctx.Value(systemKey); v != nil {
		return v.(*System)
	}
	return nil
}

// System is the scheduler context of one bring-up: the kernel, the timer,
// the synchronization objects and the shared flags. A restart creates a new
// System with a new session ID.
type System struct {
	sessionID string
	cfg       config.Config
	logger    core.Logger

	kernel *core.Kernel

	tick    *core.BinarySemaphore
	capture *core.BinarySemaphore
	audio   *core.BinarySemaphore

	timer   *hwtimer.Group
	tickISR *hwtimer.TickISR

	pulsesPaused core.Flag
	heartbeat    core.Heartbeat
	maxMixer     core.Watermark

	menu      *tasks.MenuLoop
	mixer     *tasks.MixerLoop
	per10ms   *tasks.Per10msLoop
	encoder   *tasks.EncoderLoop
	audioLoop *tasks.AudioLoop

	shutdownOnce sync.Once
}

// BringUp creates the synchronization objects, then the tasks in descending
// priority order, then starts the heartbeat timer. Each step must succeed
// before the next; any failure is logged and returned as *FatalError.
func BringUp(ctx context.Context, cfg config.Config, app Application, opts ...Option) (*System, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = core.NewDefaultLogger()
	}
	logger := core.WithTag(o.logger, "startup")

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", core.F("error", err))
		return nil, &FatalError{Step: StepConfig, Err: err}
	}
	table, err := cfg.TaskTable()
	if err != nil {
		logger.Error("invalid task table", core.F("error", err))
		return nil, &FatalError{Step: StepConfig, Err: err}
	}
	sort.SliceStable(table, func(i, j int) bool {
		return table[i].Priority > table[j].Priority
	})

	s := &System{
		sessionID: uuid.New().String(),
		cfg:       cfg,
		logger:    logger,
		kernel:    o.kernel,
	}
	// Pulses stay paused until the application has initialized.
	s.pulsesPaused.Set()

	if s.kernel == nil {
		heap := cfg.HeapSize
		if o.heapSize > 0 {
			heap = o.heapSize
		}
		s.kernel = core.NewKernel(ctx, core.KernelConfig{
			HeapSize:     heap,
			Clock:        o.clock,
			Logger:       o.logger,
			PanicHandler: o.panicHandler,
			Metrics:      o.metrics,
			PinThreads:   cfg.PinThreads,
		})
	}

	logger.Info("starting tasks", core.F("session", s.sessionID))

	if err := s.createSemaphores(); err != nil {
		s.abort()
		return nil, err
	}
	s.buildLoops(app)
	if err := s.createTasks(table); err != nil {
		s.abort()
		return nil, err
	}
	if err := s.startTimer(o.manualTimer); err != nil {
		s.abort()
		return nil, err
	}
	return s, nil
}

// MustBringUp is BringUp that panics on failure.
func MustBringUp(ctx context.Context, cfg config.Config, app Application, opts ...Option) *System {
	s, err := BringUp(ctx, cfg, app, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *System) createSemaphores() error {
	for _, obj := range []struct {
		name string
		dst  **core.BinarySemaphore
	}{
		{AudioSemaphore, &s.audio},
		{CaptureSemaphore, &s.capture},
		{TickSemaphore, &s.tick},
	} {
		sem, err := s.kernel.CreateBinarySemaphore(obj.name)
		if err != nil {
			s.logger.Error(fmt.Sprintf("Failed to create semaphore: %s.", obj.name), core.F("error", err))
			return &FatalError{Step: StepSemaphores, Object: obj.name, Err: err}
		}
		*obj.dst = sem
	}
	return nil
}

func (s *System) buildLoops(app Application) {
	nop := func(context.Context) {}
	or := func(t core.Task) core.Task {
		if t == nil {
			return nop
		}
		return t
	}

	s.menu = &tasks.MenuLoop{
		Init:    app.Init,
		PerMain: or(app.PerMain),
		Period:  s.cfg.Menu.Period,
	}
	s.mixer = &tasks.MixerLoop{
		Capture:     s.capture,
		Timeout:     s.cfg.Mixer.Timeout,
		Paused:      &s.pulsesPaused,
		PreWait:     app.PreWait,
		Mix:         app.Mix,
		Hooks:       app.Hooks,
		Heartbeat:   &s.heartbeat,
		Watchdog:    app.Watchdog,
		MaxDuration: &s.maxMixer,
		Epoch:       s.kernel.StartTime(),
	}
	s.per10ms = &tasks.Per10msLoop{
		Tick:      s.tick,
		Per10ms:   or(app.Per10ms),
		Heartbeat: &s.heartbeat,
	}
	s.encoder = &tasks.EncoderLoop{
		Poll:   or(app.EncoderPoll),
		Period: s.cfg.Encoder.Period,
	}
	audioCfg := tasks.DefaultAudioConfig()
	if s.cfg.Audio.SampleRate > 0 {
		audioCfg.SampleRate = s.cfg.Audio.SampleRate
	}
	s.audioLoop = &tasks.AudioLoop{
		Wake:    s.audio,
		Timeout: s.cfg.Audio.Timeout,
		Driver:  app.AudioDriver,
		Config:  audioCfg,
		Wakeup:  app.AudioWakeup,
	}
}

func (s *System) bodyFor(name string) core.TaskBody {
	var body core.TaskBody
	switch name {
	case tasks.MenuTaskName:
		body = s.menu.Run
	case tasks.MixerTaskName:
		body = s.mixer.Run
	case tasks.Per10msTaskName:
		body = s.per10ms.Run
	case tasks.EncoderTaskName:
		body = s.encoder.Run
	case tasks.AudioTaskName:
		body = s.audioLoop.Run
	default:
		return nil
	}
	return func(ctx context.Context, h *core.TaskHandle) {
		body(context.WithValue(ctx, systemKey, s), h)
	}
}

func (s *System) createTasks(table []core.TaskDescriptor) error {
	for _, desc := range table {
		h, err := s.kernel.CreatePinnedTask(desc, s.bodyFor(desc.Name))
		if err != nil {
			s.logger.Error("failed to create task",
				core.F("task", desc.Name),
				core.F("error", err))
			return &FatalError{Step: StepTasks, Object: desc.Name, Err: err}
		}
		if h == nil {
			s.logger.Error("task handle is nil", core.F("task", desc.Name))
			return &FatalError{Step: StepTasks, Object: desc.Name, Err: ErrNilTaskHandle}
		}
	}
	return nil
}

func (s *System) startTimer(manual bool) error {
	tc := s.cfg.Timer
	opts := []hwtimer.Option{
		hwtimer.WithLogger(s.kernel.Logger()),
		hwtimer.WithClock(s.kernel.Clock()),
	}
	if manual {
		opts = append(opts, hwtimer.WithManualDrive())
	}
	channels := max(2, tc.Channel+1)
	s.timer = hwtimer.NewGroup(tc.Group, channels, opts...)
	s.tickISR = hwtimer.NewTickISR(s.timer, tc.Channel, s.tick)

	s.logger.Info("Starting 10ms timer.")
	settings := s.cfg.TimerSettings()
	steps := []func() error{
		func() error { return s.timer.Init(tc.Channel, settings) },
		func() error { return s.timer.SetCounterValue(tc.Channel, 0) },
		func() error { return s.timer.SetAlarmValue(tc.Channel, settings.AlarmValue) },
		func() error { return s.timer.EnableIntr(tc.Channel) },
		func() error { return s.timer.RegisterISR(tc.Channel, s.tickISR.Handle, tc.Channel) },
		func() error { return s.timer.Start(tc.Channel) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			object := fmt.Sprintf("timer_group%d/%d", tc.Group, tc.Channel)
			s.logger.Error("timer init failed", core.F("timer", object), core.F("error", err))
			return &FatalError{Step: StepTimer, Object: object, Err: err}
		}
	}
	return nil
}

// abort tears down what a failed bring-up had created.
func (s *System) abort() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.kernel.Shutdown()
}

// =============================================================================
// Accessors
// =============================================================================

// SessionID identifies this bring-up.
func (s *System) SessionID() string { return s.sessionID }

// Config returns the configuration the system was brought up with.
func (s *System) Config() config.Config { return s.cfg }

// Kernel returns the kernel hosting the tasks.
func (s *System) Kernel() *core.Kernel { return s.kernel }

// Timer returns the heartbeat timer group.
func (s *System) Timer() *hwtimer.Group { return s.timer }

// TickISR returns the heartbeat interrupt handler.
func (s *System) TickISR() *hwtimer.TickISR { return s.tickISR }

// Tick returns the semaphore the heartbeat ISR signals.
func (s *System) Tick() *core.BinarySemaphore { return s.tick }

// Capture returns the input-capture semaphore.
func (s *System) Capture() *core.BinarySemaphore { return s.capture }

// Audio returns the audio wake semaphore.
func (s *System) Audio() *core.BinarySemaphore { return s.audio }

// Mixer returns the mixer loop.
func (s *System) Mixer() *tasks.MixerLoop { return s.mixer }

// AudioLoop returns the audio loop.
func (s *System) AudioLoop() *tasks.AudioLoop { return s.audioLoop }

// Heartbeat returns the watchdog check-in word.
func (s *System) Heartbeat() *core.Heartbeat { return &s.heartbeat }

// PausePulses stops mixer computation from the next cycle on.
func (s *System) PausePulses() { s.pulsesPaused.Set() }

// ResumePulses restarts mixer computation.
func (s *System) ResumePulses() { s.pulsesPaused.Clear() }

// PulsesPaused reports the pause flag.
func (s *System) PulsesPaused() bool { return s.pulsesPaused.IsSet() }

// SignalInputCapture wakes the mixer early. It reports whether the signal
// was not merged into one already pending.
func (s *System) SignalInputCapture() bool { return s.capture.Give() }

// WakeAudio wakes the audio task.
func (s *System) WakeAudio() bool { return s.audio.Give() }

// SetSampleRate changes the audio output rate.
func (s *System) SetSampleRate(hz uint32) error { return s.audioLoop.SetSampleRate(hz) }

// StackAvailable returns the stack high-water mark of the named task.
func (s *System) StackAvailable(name string) (uint32, bool) {
	h := s.kernel.Task(name)
	if h == nil {
		return 0, false
	}
	return h.StackHighWaterMark(), true
}

// MaxMixerDuration returns the longest mixer cycle this session.
func (s *System) MaxMixerDuration() time.Duration { return s.maxMixer.Load() }

// Snapshot samples the task set for the health monitor.
func (s *System) Snapshot() health.Snapshot {
	return health.Snapshot{
		SessionID:          s.sessionID,
		Taken:              s.kernel.Clock().Now(),
		PulsesPaused:       s.pulsesPaused.IsSet(),
		MaxMixerDurationUs: s.maxMixer.Micros(),
		TotalRunTime:       s.kernel.TotalRunTime(),
		Tasks:              health.SamplesFromStatus(s.kernel.SystemState()),
	}
}

// Shutdown stops the timer and every task. Process teardown only.
func (s *System) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.logger.Info("shutting down", core.F("session", s.sessionID))
		s.timer.Stop()
		s.kernel.Shutdown()
	})
}

var _ health.Source = (*System)(nil)
