// Package health is the low-priority reporting loop: stack headroom, the
// maximum mixer duration and per-task CPU shares, sampled on a multi-second
// cadence and handed to one or more sinks. It is best-effort and never
// touches the tick path.
package health

import (
	"fmt"
	"time"

	"github.com/Swind/go-txcore/core"
)

// TaskSample is one task's counters at snapshot time.
type TaskSample struct {
	Name           string         `cbor:"1,keyasint"`
	Priority       int            `cbor:"2,keyasint"`
	Core           int            `cbor:"3,keyasint"`
	StackHighWater uint32         `cbor:"4,keyasint"`
	RunTime        uint64         `cbor:"5,keyasint"`
	State          core.TaskState `cbor:"6,keyasint"`
}

// CPUStat is one task's share of total run time.
type CPUStat struct {
	Name    string `cbor:"1,keyasint"`
	RunTime uint64 `cbor:"2,keyasint"`
	Percent uint64 `cbor:"3,keyasint"`
}

// UnderOnePercent reports whether the share floored to zero.
func (s CPUStat) UnderOnePercent() bool { return s.Percent == 0 }

// String formats the stat line.
func (s CPUStat) String() string {
	if s.UnderOnePercent() {
		return fmt.Sprintf("stat: %-16s\t%12d\t<1%%", s.Name, s.RunTime)
	}
	return fmt.Sprintf("stat: %-16s\t%12d\t%d%%", s.Name, s.RunTime, s.Percent)
}

// Snapshot is one health report.
type Snapshot struct {
	SessionID          string       `cbor:"1,keyasint"`
	Taken              time.Time    `cbor:"2,keyasint"`
	PulsesPaused       bool         `cbor:"3,keyasint"`
	MaxMixerDurationUs int64        `cbor:"4,keyasint"`
	TotalRunTime       uint64       `cbor:"5,keyasint"`
	Tasks              []TaskSample `cbor:"6,keyasint"`
	CPU                []CPUStat    `cbor:"7,keyasint,omitempty"`
}

// ComputeCPUStats returns each task's share of total, in whole percent
// rounded down. total is normalized to hundredths first so no floating point
// is needed. A zero normalized total yields no stats at all.
func ComputeCPUStats(tasks []TaskSample, total uint64) []CPUStat {
	total /= 100
	if total == 0 {
		return nil
	}
	out := make([]CPUStat, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, CPUStat{
			Name:    t.Name,
			RunTime: t.RunTime,
			Percent: t.RunTime / total,
		})
	}
	return out
}

// SamplesFromStatus converts kernel task status into samples.
func SamplesFromStatus(status []core.TaskStatus) []TaskSample {
	out := make([]TaskSample, 0, len(status))
	for _, s := range status {
		out = append(out, TaskSample{
			Name:           s.Name,
			Priority:       int(s.Priority),
			Core:           int(s.Core),
			StackHighWater: s.StackHighWater,
			RunTime:        s.RunTime,
			State:          s.State,
		})
	}
	return out
}
