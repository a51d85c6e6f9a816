package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	txcore "github.com/Swind/go-txcore"
	"github.com/Swind/go-txcore/health"
)

// Console is the interactive command line of txsim.
type Console struct {
	rl      *readline.Instance
	sys     *txcore.System
	monitor *health.Monitor
}

// NewConsole creates the console. Attach must be called before Run.
func NewConsole() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tx> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl}, nil
}

// Stdout returns a writer that does not interfere with the prompt.
func (c *Console) Stdout() io.Writer { return c.rl.Stdout() }

// Stderr returns a writer that does not interfere with the prompt.
func (c *Console) Stderr() io.Writer { return c.rl.Stderr() }

// Attach binds the console to a running system.
func (c *Console) Attach(sys *txcore.System, monitor *health.Monitor) {
	c.sys = sys
	c.monitor = monitor
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "pause":
			c.sys.PausePulses()
			fmt.Fprintln(c.rl.Stdout(), "pulses paused")

		case "resume":
			c.sys.ResumePulses()
			fmt.Fprintln(c.rl.Stdout(), "pulses resumed")

		case "stats", "s":
			c.cmdStats()

		case "stack":
			c.cmdStack(args)

		case "capture":
			c.sys.SignalInputCapture()

		case "beep":
			c.sys.WakeAudio()

		case "rate":
			c.cmdRate(args)

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
txsim commands:
  pause            - Pause output pulses (mixer skips computation)
  resume           - Resume output pulses
  stats            - Print a health report
  stack [task]     - Show free stack of one or all tasks
  capture          - Signal an input capture (wakes the mixer early)
  beep             - Wake the audio task
  rate <hz>        - Change the audio sample rate
  quit             - Exit`)
}

func (c *Console) cmdStats() {
	snap := c.monitor.Snapshot()
	out := c.rl.Stdout()
	fmt.Fprintf(out, "session %s  pulses paused: %t\n", snap.SessionID, snap.PulsesPaused)
	fmt.Fprintf(out, "maxMixerDuration: %d us.\n", snap.MaxMixerDurationUs)
	for _, t := range snap.Tasks {
		fmt.Fprintf(out, "  %-12s prio %2d  core %2d  %-8s  run %d us\n",
			t.Name, t.Priority, t.Core, t.State, t.RunTime)
	}
	if len(snap.CPU) == 0 {
		fmt.Fprintln(out, "  (no run time yet)")
	}
	for _, s := range snap.CPU {
		fmt.Fprintln(out, s.String())
	}
}

func (c *Console) cmdStack(args []string) {
	out := c.rl.Stdout()
	if len(args) > 0 {
		free, ok := c.sys.StackAvailable(args[0])
		if !ok {
			fmt.Fprintf(out, "no task %q\n", args[0])
			return
		}
		fmt.Fprintf(out, "%s: %d\n", args[0], free)
		return
	}
	for _, h := range c.sys.Kernel().Tasks() {
		fmt.Fprintf(out, "%s: %d\n", h.Name(), h.StackHighWaterMark())
	}
}

func (c *Console) cmdRate(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "usage: rate <hz>")
		return
	}
	hz, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "bad rate %q: %v\n", args[0], err)
		return
	}
	if err := c.sys.SetSampleRate(uint32(hz)); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "error: %v\n", err)
	}
}
