package tasks

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Swind/go-txcore/core"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

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

func (l *recordingLogger) has(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// newKernel returns a kernel on clock (nil means the system clock) that is
// shut down when the test ends.
func newKernel(t *testing.T, clock core.Clock, logger core.Logger) *core.Kernel {
	t.Helper()
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	k := core.NewKernel(context.Background(), core.KernelConfig{
		Clock:  clock,
		Logger: logger,
	})
	t.Cleanup(k.Shutdown)
	return k
}

// startTask creates the named task from the default table running body.
func startTask(t *testing.T, k *core.Kernel, name string, body core.TaskBody) *core.TaskHandle {
	t.Helper()
	desc, ok := Lookup(DefaultTable(), name)
	if !ok {
		t.Fatalf("no task %s in default table", name)
	}
	h, err := k.CreatePinnedTask(desc, body)
	if err != nil {
		t.Fatalf("CreatePinnedTask(%s) error = %v", name, err)
	}
	return h
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
