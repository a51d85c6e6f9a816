package txcore

import (
	"github.com/Swind/go-txcore/core"
	"github.com/Swind/go-txcore/tasks"
)

// Re-export commonly used types from core and tasks for convenience.
// This allows applications to import only the txcore package for most use cases.

// Task is a periodic callback (Closure)
type Task = core.Task

// Logger is the diagnostics sink
type Logger = core.Logger

// Field is a structured log field
type Field = core.Field

// Hook is an optional mixer capability
type Hook = tasks.Hook

// Hooks is an ordered list of mixer capabilities
type Hooks = tasks.Hooks

// Watchdog is fed by the mixer
type Watchdog = tasks.Watchdog

// AudioDriver is the audio sample backend
type AudioDriver = tasks.AudioDriver

// Heartbeat bits
const (
	HeartTimer10ms   = core.HeartTimer10ms
	HeartTimerPulses = core.HeartTimerPulses
	HeartWDTCheck    = core.HeartWDTCheck
)

// Task names
const (
	MenuTask    = tasks.MenuTaskName
	MixerTask   = tasks.MixerTaskName
	Per10msTask = tasks.Per10msTaskName
	EncoderTask = tasks.EncoderTaskName
	AudioTask   = tasks.AudioTaskName
)

// F creates a log field
var F = core.F

// Tmr2MHz reads the free-running 2 MHz counter of the system.
func (s *System) Tmr2MHz() uint16 {
	return core.Tmr2MHz(s.kernel.Clock(), s.kernel.StartTime())
}
