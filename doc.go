// Package txcore is the real-time task-orchestration core of an RC
// transmitter: a fixed set of pinned periodic tasks driven by a 10 ms
// hardware heartbeat, with an interrupt-safe handoff waking the
// time-critical task.
//
// # Quick Start
//
// Bring the system up with the firmware defaults and application callbacks:
//
//	sys, err := txcore.BringUp(ctx, config.Default(), txcore.Application{
//		Init: func(ctx context.Context) {
//			// load model, then let the mixer run
//			txcore.FromContext(ctx).ResumePulses()
//		},
//		Mix:     mixer.Compute,
//		Per10ms: timers.Tick,
//		PerMain: ui.Scan,
//	})
//	if err != nil {
//		log.Fatal(err) // *txcore.FatalError
//	}
//	defer sys.Shutdown()
//
// # Task Set
//
// Tasks, most urgent first:
//
//	menusTask    core 0  absolute 50 ms period, Init once then PerMain
//	mixerTask    core 1  input-capture signal or 20 ms, whichever first
//	per10msTask  core 0  one run per heartbeat tick, missed ticks merge
//	encoderTask  core 0  absolute 10 ms period
//	audioTask    core 0  audio signal or 10 ms
//
// The health monitor (package health) runs below all of them on the
// caller's goroutine.
//
// # Bring-up Order
//
// BringUp creates every synchronization object, then every task in
// descending priority order, then starts the heartbeat timer, so no tick
// can be lost to a consumer that does not exist yet. Any failure is fatal
// and returned as *FatalError; nothing is retried.
//
// # Interrupt Context
//
// The tick handler runs with a *core.InterruptContext. Blocking primitives
// panic when handed one, and any panic raised in interrupt context is fatal.
package txcore
