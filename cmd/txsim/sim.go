package main

import (
	"context"
	"sync/atomic"

	txcore "github.com/Swind/go-txcore"
	"github.com/Swind/go-txcore/core"
	"github.com/Swind/go-txcore/input"
	"github.com/Swind/go-txcore/tasks"
)

// Approximate stack depth of each simulated callback, reported so the
// health monitor has headroom figures to show.
const (
	mixStackUse     = 0x2C0
	menuStackUse    = 0x600
	per10msStackUse = 0x180
	encoderStackUse = 0x120
	audioStackUse   = 0x300
)

// beepEvery is how many heartbeat ticks pass between simulated beeps.
const beepEvery = 100

// simulator provides stand-in application callbacks: a two-channel mix from
// the latest receiver frame, a menu scan counter and a beeper.
type simulator struct {
	logger core.Logger

	sticks  atomic.Pointer[input.Frame]
	outputs [2]atomic.Int32

	menuScans    atomic.Uint64
	ticks        atomic.Uint64
	encoderPolls atomic.Uint64
	samples      atomic.Uint64
}

func newSimulator(logger core.Logger) *simulator {
	return &simulator{logger: core.WithTag(logger, "sim")}
}

// application wires the callbacks into a txcore.Application.
func (s *simulator) application(wdt tasks.Watchdog, preWait tasks.Hooks) txcore.Application {
	return txcore.Application{
		Init:        s.init,
		PerMain:     s.perMain,
		Mix:         s.mix,
		Per10ms:     s.per10ms,
		EncoderPoll: s.encoderPoll,
		AudioWakeup: s.audioWakeup,
		PreWait:     preWait,
		AudioDriver: &simAudio{logger: s.logger},
		Watchdog:    wdt,
	}
}

func (s *simulator) init(ctx context.Context) {
	core.ReportStackUsage(ctx, menuStackUse)
	s.logger.Info("model loaded")
	if sys := txcore.FromContext(ctx); sys != nil {
		sys.ResumePulses()
	}
}

func (s *simulator) perMain(ctx context.Context) {
	core.ReportStackUsage(ctx, menuStackUse)
	s.menuScans.Add(1)
}

// applyFrame is the SBUS pre-wait hook target.
func (s *simulator) applyFrame(f input.Frame) {
	s.sticks.Store(&f)
}

// mix is an elevon mix of aileron (ch1) and elevator (ch2), centered on the
// SBUS midpoint.
func (s *simulator) mix(ctx context.Context) {
	core.ReportStackUsage(ctx, mixStackUse)

	f := s.sticks.Load()
	if f == nil || f.Failsafe {
		s.outputs[0].Store(0)
		s.outputs[1].Store(0)
		return
	}
	ail := int32(f.Channels[0]) - 1024
	ele := int32(f.Channels[1]) - 1024
	s.outputs[0].Store(clampOutput(ele + ail))
	s.outputs[1].Store(clampOutput(ele - ail))
}

func clampOutput(v int32) int32 {
	return min(max(v, -1024), 1024)
}

func (s *simulator) per10ms(ctx context.Context) {
	core.ReportStackUsage(ctx, per10msStackUse)
	if n := s.ticks.Add(1); n%beepEvery == 0 {
		if sys := txcore.FromContext(ctx); sys != nil {
			sys.WakeAudio()
		}
	}
}

func (s *simulator) encoderPoll(ctx context.Context) {
	core.ReportStackUsage(ctx, encoderStackUse)
	s.encoderPolls.Add(1)
}

func (s *simulator) audioWakeup(ctx context.Context) {
	core.ReportStackUsage(ctx, audioStackUse)
	s.samples.Add(uint64(tasks.DefaultAudioConfig().DMABufLen))
}

// simAudio is an AudioDriver that only logs.
type simAudio struct {
	logger core.Logger
	rate   atomic.Uint32
}

func (a *simAudio) Install(cfg tasks.AudioConfig) error {
	a.rate.Store(cfg.SampleRate)
	a.logger.Info("audio driver installed",
		core.F("sample_rate", cfg.SampleRate),
		core.F("bits", cfg.BitsPerSample),
		core.F("dma_buf_count", cfg.DMABufCount),
		core.F("dma_buf_len", cfg.DMABufLen))
	return nil
}

func (a *simAudio) SetSampleRate(hz uint32) error {
	a.rate.Store(hz)
	a.logger.Info("audio sample rate changed", core.F("sample_rate", hz))
	return nil
}
