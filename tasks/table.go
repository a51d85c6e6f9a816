// Package tasks holds the fixed task set of the transmitter: the loop body
// of every pinned task and the descriptor table they are created from.
//
// Every loop follows the same shape: block on its wait primitive, run its
// callback through the task handle, block again. Loops return only when
// their context is canceled at teardown.
package tasks

import (
	"time"

	"github.com/Swind/go-txcore/core"
)

// Task names.
const (
	MenuTaskName    = "menusTask"
	MixerTaskName   = "mixerTask"
	Per10msTaskName = "per10msTask"
	EncoderTaskName = "encoderTask"
	AudioTaskName   = "audioTask"
)

// Priorities, most urgent first. The health monitor runs below all of them.
const (
	MenuPriority    = core.PriorityMax - 4
	MixerPriority   = core.PriorityMax - 5
	Per10msPriority = core.PriorityMax - 6
	EncoderPriority = core.PriorityMax - 8
	AudioPriority   = core.PriorityMax - 9
	HealthPriority  = core.PriorityIdle
)

// Stack budgets in bytes.
const (
	MenuStackSize    = 0xA00
	MixerStackSize   = 0x800
	Per10msStackSize = 0x500
	EncoderStackSize = 0x800
	AudioStackSize   = 0x800
)

// Cadences.
const (
	MixerTimeout  = 20 * time.Millisecond
	MenuPeriod    = 50 * time.Millisecond
	AudioTimeout  = 10 * time.Millisecond
	EncoderPeriod = 10 * time.Millisecond
)

// DefaultTable returns the task descriptors in creation order (descending
// priority).
func DefaultTable() []core.TaskDescriptor {
	return []core.TaskDescriptor{
		{
			Name:      MenuTaskName,
			Priority:  MenuPriority,
			Core:      core.CoreA,
			StackSize: MenuStackSize,
			Wait:      core.WaitUntil,
			Periodic:  true,
			Period:    MenuPeriod,
		},
		{
			Name:      MixerTaskName,
			Priority:  MixerPriority,
			Core:      core.CoreB,
			StackSize: MixerStackSize,
			Wait:      core.WaitBounded,
			Periodic:  true,
			Timeout:   MixerTimeout,
		},
		{
			Name:      Per10msTaskName,
			Priority:  Per10msPriority,
			Core:      core.CoreA,
			StackSize: Per10msStackSize,
			Wait:      core.WaitForever,
			Periodic:  true,
		},
		{
			Name:      EncoderTaskName,
			Priority:  EncoderPriority,
			Core:      core.CoreA,
			StackSize: EncoderStackSize,
			Wait:      core.WaitUntil,
			Periodic:  true,
			Period:    EncoderPeriod,
		},
		{
			Name:      AudioTaskName,
			Priority:  AudioPriority,
			Core:      core.CoreA,
			StackSize: AudioStackSize,
			Wait:      core.WaitBounded,
			Periodic:  false,
			Timeout:   AudioTimeout,
		},
	}
}

// Lookup returns the descriptor named name from table.
func Lookup(table []core.TaskDescriptor, name string) (core.TaskDescriptor, bool) {
	for _, d := range table {
		if d.Name == name {
			return d, true
		}
	}
	return core.TaskDescriptor{}, false
}
