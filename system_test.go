package txcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-txcore/config"
	"github.com/Swind/go-txcore/core"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+msg)
}

func (l *recordingLogger) Debug(msg string, fields ...core.Field) { l.add("DEBUG", msg) }
func (l *recordingLogger) Info(msg string, fields ...core.Field)  { l.add("INFO", msg) }
func (l *recordingLogger) Warn(msg string, fields ...core.Field)  { l.add("WARN", msg) }
func (l *recordingLogger) Error(msg string, fields ...core.Field) { l.add("ERROR", msg) }

func (l *recordingLogger) has(line string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.lines {
		if got == line {
			return true
		}
	}
	return false
}

// bringUp starts a system on the built-in configuration with a manually
// driven timer and stops it at the end of the test.
func bringUp(t *testing.T, app Application, opts ...Option) (*System, *recordingLogger) {
	t.Helper()
	logger := &recordingLogger{}
	opts = append([]Option{WithLogger(logger), WithManualTimer()}, opts...)
	sys, err := BringUp(context.Background(), config.Default(), app, opts...)
	require.NoError(t, err)
	t.Cleanup(sys.Shutdown)
	return sys, logger
}

// TestBringUp_CreatesTaskSet verifies the order of bring-up
// Main test items:
// 1. Three semaphores and five tasks exist
// 2. Tasks are created in descending priority order
// 3. The timer is announced after the tasks
// 4. Pulses start paused
func TestBringUp_CreatesTaskSet(t *testing.T) {
	release := make(chan struct{})
	sys, logger := bringUp(t, Application{
		Init: func(ctx context.Context) { <-release },
	})
	defer close(release)

	k := sys.Kernel()
	assert.Equal(t, 5, k.TaskCount())
	require.Len(t, k.Semaphores(), 3)
	assert.Equal(t, AudioSemaphore, k.Semaphores()[0].Name())
	assert.Equal(t, CaptureSemaphore, k.Semaphores()[1].Name())
	assert.Equal(t, TickSemaphore, k.Semaphores()[2].Name())

	var names []string
	handles := k.Tasks()
	for i, h := range handles {
		names = append(names, h.Name())
		if i > 0 {
			assert.Less(t, h.Descriptor().Priority, handles[i-1].Descriptor().Priority, h.Name())
		}
	}
	assert.Equal(t, []string{MenuTask, MixerTask, Per10msTask, EncoderTask, AudioTask}, names)

	assert.True(t, logger.has("INFO Starting 10ms timer."))
	assert.True(t, sys.PulsesPaused())
	assert.NotEmpty(t, sys.SessionID())
}

// TestBringUp_InitResumesPulses verifies the application reaches the System
// through its task context
func TestBringUp_InitResumesPulses(t *testing.T) {
	var mixes atomic.Int32
	sys, _ := bringUp(t, Application{
		Init: func(ctx context.Context) { FromContext(ctx).ResumePulses() },
		Mix:  func(ctx context.Context) { mixes.Add(1) },
	})

	require.Eventually(t, func() bool { return !sys.PulsesPaused() }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return mixes.Load() > 0 }, time.Second, time.Millisecond)

	sys.PausePulses()
	assert.True(t, sys.PulsesPaused())
	assert.Nil(t, FromContext(context.Background()))
}

// TestBringUp_TimerDrivesPer10ms verifies the heartbeat path
// Given: a manually driven timer
// When: the alarm fires three times, each after the previous run
// Then: the 10ms callback runs three times and checks in
func TestBringUp_TimerDrivesPer10ms(t *testing.T) {
	var runs atomic.Int32
	sys, _ := bringUp(t, Application{
		Per10ms: func(ctx context.Context) { runs.Add(1) },
	})

	for i := int32(1); i <= 3; i++ {
		require.NoError(t, sys.Timer().Fire(sys.Config().Timer.Channel))
		require.Eventually(t, func() bool { return runs.Load() == i }, time.Second, time.Millisecond)
	}
	assert.Equal(t, uint64(3), sys.TickISR().Ticks())
	assert.NotZero(t, sys.Heartbeat().Load()&HeartTimer10ms)
}

// TestBringUp_SemaphoreHeapExhausted verifies a failed semaphore stops
// bring-up before any task exists
func TestBringUp_SemaphoreHeapExhausted(t *testing.T) {
	logger := &recordingLogger{}
	k := core.NewKernel(context.Background(), core.KernelConfig{HeapSize: 100, Logger: logger})

	sys, err := BringUp(context.Background(), config.Default(), Application{},
		WithLogger(logger), WithKernel(k))

	require.Nil(t, sys)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, StepSemaphores, fatal.Step)
	assert.Equal(t, CaptureSemaphore, fatal.Object)
	assert.ErrorIs(t, err, core.ErrOutOfHeap)
	assert.True(t, logger.has("ERROR Failed to create semaphore: ppm."))
	assert.Equal(t, 0, k.TaskCount())
}

// TestBringUp_TaskHeapExhausted verifies a failed task creation stops
// bring-up and tears down the tasks already running
func TestBringUp_TaskHeapExhausted(t *testing.T) {
	// Room for the semaphores and the menu task only.
	heap := 3*88 + 0xA00 + 344
	k := core.NewKernel(context.Background(), core.KernelConfig{HeapSize: heap, Logger: core.NewNoOpLogger()})

	_, err := BringUp(context.Background(), config.Default(), Application{},
		WithLogger(core.NewNoOpLogger()), WithKernel(k))

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, StepTasks, fatal.Step)
	assert.Equal(t, MixerTask, fatal.Object)
	assert.ErrorIs(t, err, core.ErrOutOfHeap)
	assert.Equal(t, 1, k.TaskCount())
	assert.Equal(t, core.TaskStopped, k.Task(MenuTask).State())
	assert.True(t, strings.HasPrefix(err.Error(), "bring-up failed: create tasks: mixerTask:"), err.Error())
}

func TestBringUp_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Mixer.Timeout = 0

	_, err := BringUp(context.Background(), cfg, Application{}, WithLogger(core.NewNoOpLogger()))

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, StepConfig, fatal.Step)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	assert.Panics(t, func() {
		MustBringUp(context.Background(), cfg, Application{}, WithLogger(core.NewNoOpLogger()))
	})
}

func TestSystem_Accessors(t *testing.T) {
	sys, _ := bringUp(t, Application{})

	free, ok := sys.StackAvailable(MixerTask)
	assert.True(t, ok)
	assert.LessOrEqual(t, free, uint32(0x800))
	_, ok = sys.StackAvailable("idle")
	assert.False(t, ok)

	snap := sys.Snapshot()
	assert.Equal(t, sys.SessionID(), snap.SessionID)
	assert.True(t, snap.PulsesPaused)
	require.Len(t, snap.Tasks, 5)
	assert.Equal(t, MenuTask, snap.Tasks[0].Name)
	assert.Empty(t, snap.CPU)

	assert.Equal(t, time.Duration(0), sys.MaxMixerDuration())
	assert.NotNil(t, sys.Capture())
	assert.NotNil(t, sys.Audio())
	assert.NotNil(t, sys.Tick())
	assert.NotNil(t, sys.Mixer())
	assert.NotNil(t, sys.AudioLoop())
}

// TestSystem_ShutdownIsIdempotent verifies teardown stops every task once
func TestSystem_ShutdownIsIdempotent(t *testing.T) {
	logger := &recordingLogger{}
	sys, err := BringUp(context.Background(), config.Default(), Application{},
		WithLogger(logger), WithManualTimer())
	require.NoError(t, err)

	sys.Shutdown()
	sys.Shutdown()

	for _, h := range sys.Kernel().Tasks() {
		assert.Equal(t, core.TaskStopped, h.State(), h.Name())
	}
	err = sys.Timer().Fire(0)
	assert.Error(t, err)

	_, err = sys.Kernel().CreateBinarySemaphore("late")
	assert.True(t, errors.Is(err, core.ErrKernelStopped))
}
