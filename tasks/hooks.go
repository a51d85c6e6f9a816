package tasks

import (
	"context"

	"github.com/Swind/go-txcore/core"
)

// Hook is an optional capability run inside the mixer cycle
// (telemetry, bluetooth, SBUS input, ...).
type Hook struct {
	Name    string
	Enabled bool
	Run     core.Task
}

// Hooks run in order; disabled hooks are skipped. The set is fixed at
// configuration time.
type Hooks []Hook

// Run invokes every enabled hook.
func (hs Hooks) Run(ctx context.Context) {
	for i := range hs {
		if hs[i].Enabled && hs[i].Run != nil {
			hs[i].Run(ctx)
		}
	}
}

// Enabled returns the names of the enabled hooks.
func (hs Hooks) Enabled() []string {
	var names []string
	for _, h := range hs {
		if h.Enabled && h.Run != nil {
			names = append(names, h.Name)
		}
	}
	return names
}

// Watchdog is fed by the mixer once every heartbeat producer has checked in.
type Watchdog interface {
	Reset()
}
