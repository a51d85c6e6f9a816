// Package hwtimer models a hardware timer group: free-running counters that
// raise an alarm interrupt at a programmed count, plus the tick interrupt
// handler and a software watchdog.
//
// The register model follows the timer peripheral closely. On every alarm
// the hardware sets the channel's status bit and disarms the alarm, so a
// handler that does not re-arm it receives no further interrupts.
package hwtimer

import (
	"errors"
	"fmt"
	"time"
)

// BaseClock is the timer input clock in Hz.
const BaseClock = 80_000_000

var (
	// ErrTimerConfig is returned for a timer configuration that cannot produce
	// a periodic tick. It is fatal at bring-up.
	ErrTimerConfig = errors.New("invalid timer configuration")

	// ErrNoChannel is returned for a channel index outside the group.
	ErrNoChannel = errors.New("no such timer channel")

	// ErrNotInitialized is returned when a channel is used before Init.
	ErrNotInitialized = errors.New("timer channel not initialized")
)

// Direction is the counting direction.
type Direction int

const (
	CountDown Direction = iota
	CountUp
)

func (d Direction) String() string {
	if d == CountUp {
		return "up"
	}
	return "down"
}

// IntrType selects level or edge interrupts.
type IntrType int

const (
	IntrLevel IntrType = iota
	IntrEdge
)

// Config is the per-channel timer configuration.
type Config struct {
	Divider    uint32
	Direction  Direction
	AutoReload bool
	IntrType   IntrType

	// AlarmEnable arms the alarm as soon as the channel starts.
	AlarmEnable bool

	// AlarmValue is the counter value that raises the alarm. It may also be
	// set later with SetAlarmValue.
	AlarmValue uint64
}

// Validate checks the fields that Init requires.
func (c Config) Validate() error {
	if c.Direction != CountUp {
		return fmt.Errorf("%w: counter direction must be up, got %s", ErrTimerConfig, c.Direction)
	}
	if !c.AutoReload {
		return fmt.Errorf("%w: auto-reload must be enabled", ErrTimerConfig)
	}
	if c.Divider < 2 || c.Divider > 65536 {
		return fmt.Errorf("%w: divider %d outside [2, 65536]", ErrTimerConfig, c.Divider)
	}
	return nil
}

// Period returns the alarm period implied by divider and alarm value.
func Period(divider uint32, alarm uint64) time.Duration {
	if divider == 0 || alarm == 0 {
		return 0
	}
	return time.Duration(alarm * uint64(divider) * uint64(time.Second) / BaseClock)
}

// AlarmFor returns the alarm value giving hz interrupts per second at divider.
func AlarmFor(divider uint32, hz int) uint64 {
	if divider == 0 || hz <= 0 {
		return 0
	}
	return BaseClock / (uint64(divider) * uint64(hz))
}

// TenMillisecond is the 100 Hz heartbeat configuration.
func TenMillisecond() Config {
	return Config{
		Divider:     16,
		Direction:   CountUp,
		AutoReload:  true,
		IntrType:    IntrLevel,
		AlarmEnable: true,
		AlarmValue:  AlarmFor(16, 100),
	}
}
