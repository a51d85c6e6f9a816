package core

import (
	"context"
	"fmt"
)

type interruptKeyType struct{}

var interruptKey interruptKeyType

// InterruptContext marks code running on behalf of an interrupt handler.
// One value is created per interrupt source at registration time and reused
// on every firing, so the handler path does not allocate.
type InterruptContext struct {
	context.Context
	source         string
	yieldRequested bool
}

// NewInterruptContext derives an interrupt context for the named source.
func NewInterruptContext(parent context.Context, source string) *InterruptContext {
	return &InterruptContext{
		Context: context.WithValue(parent, interruptKey, source),
		source:  source,
	}
}

// Source names the interrupt source.
func (c *InterruptContext) Source() string { return c.source }

// YieldFromISR asks the dispatcher to reschedule as soon as the handler returns.
func (c *InterruptContext) YieldFromISR() { c.yieldRequested = true }

// Begin resets per-firing state. Called by the dispatcher before the handler runs.
func (c *InterruptContext) Begin() { c.yieldRequested = false }

// YieldRequested reports whether the handler asked for a reschedule.
func (c *InterruptContext) YieldRequested() bool { return c.yieldRequested }

// InInterrupt reports whether ctx belongs to an interrupt handler.
func InInterrupt(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	_, ok := ctx.Value(interruptKey).(string)
	return ok
}

// assertNotInInterrupt panics when a blocking primitive is used from
// interrupt context.
func assertNotInInterrupt(ctx context.Context, op string) {
	if InInterrupt(ctx) {
		panic(fmt.Sprintf("txcore: %s blocked inside interrupt %q", op, ctx.Value(interruptKey)))
	}
}
