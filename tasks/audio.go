package tasks

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Swind/go-txcore/core"
)

// AudioConfig is the output stream configuration handed to the driver.
type AudioConfig struct {
	SampleRate    uint32
	BitsPerSample int
	DMABufCount   int
	DMABufLen     int
}

// DefaultAudioConfig is a 16-bit mono DAC stream.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    32000,
		BitsPerSample: 16,
		DMABufCount:   2,
		DMABufLen:     1024,
	}
}

// AudioDriver is the sample output backend.
type AudioDriver interface {
	Install(cfg AudioConfig) error
	SetSampleRate(hz uint32) error
}

// AudioLoop feeds the audio driver. It wakes on the audio semaphore or
// after Timeout and runs Wakeup either way. If the driver cannot be
// installed the task stays alive but inactive.
type AudioLoop struct {
	Wake    *core.BinarySemaphore
	Timeout time.Duration
	Driver  AudioDriver
	Config  AudioConfig
	Wakeup  core.Task

	active   atomic.Bool
	wakeups  atomic.Uint64
	timeouts atomic.Uint64
}

// Run is the task body.
func (a *AudioLoop) Run(ctx context.Context, h *core.TaskHandle) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = AudioTimeout
	}

	a.install(h.Logger())

	for {
		if a.Wake.TakeTimeout(ctx, timeout) {
			a.wakeups.Add(1)
		} else {
			if ctx.Err() != nil {
				return
			}
			a.timeouts.Add(1)
		}
		if !a.active.Load() || a.Wakeup == nil {
			continue
		}
		h.Exec(ctx, a.Wakeup)
	}
}

func (a *AudioLoop) install(logger core.Logger) {
	if a.Driver == nil {
		logger.Warn("no audio driver, audio disabled")
		return
	}
	cfg := a.Config
	if cfg.SampleRate == 0 {
		cfg = DefaultAudioConfig()
	}
	logger.Info("init audio", core.F("sample_rate", cfg.SampleRate))
	if err := a.Driver.Install(cfg); err != nil {
		logger.Error("audio driver install failed", core.F("error", err))
		return
	}
	a.active.Store(true)
}

// SetSampleRate changes the output rate of an installed driver.
func (a *AudioLoop) SetSampleRate(hz uint32) error {
	if !a.active.Load() {
		return fmt.Errorf("set sample rate %d: audio inactive", hz)
	}
	return a.Driver.SetSampleRate(hz)
}

// Active reports whether the driver was installed.
func (a *AudioLoop) Active() bool { return a.active.Load() }

// Wakeups returns the number of signaled wakes.
func (a *AudioLoop) Wakeups() uint64 { return a.wakeups.Load() }

// Timeouts returns the number of waits that expired.
func (a *AudioLoop) Timeouts() uint64 { return a.timeouts.Load() }
