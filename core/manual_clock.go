package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// sleeper is a goroutine parked in ManualClock.Sleep
type sleeper struct {
	wakeAt time.Time
	done   chan struct{}
	index  int // for heap interface
}

// sleeperHeap implements heap.Interface ordered by wake time
type sleeperHeap []*sleeper

func (h sleeperHeap) Len() int           { return len(h) }
func (h sleeperHeap) Less(i, j int) bool { return h[i].wakeAt.Before(h[j].wakeAt) }
func (h sleeperHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *sleeperHeap) Push(x any) {
	item := x.(*sleeper)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *sleeperHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h sleeperHeap) Peek() *sleeper {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// ManualClock is a Clock that only moves when Advance or Set is called.
// Sleepers wake in deadline order once the clock reaches their deadline.
type ManualClock struct {
	mu       sync.Mutex
	now      time.Time
	sleepers sleeperHeap
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	c := &ManualClock{now: start}
	heap.Init(&c.sleepers)
	return c
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	c.mu.Lock()
	s := &sleeper{wakeAt: c.now.Add(d), done: make(chan struct{})}
	heap.Push(&c.sleepers, s)
	c.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		if s.index >= 0 {
			heap.Remove(&c.sleepers, s.index)
		}
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Advance moves the clock forward by d and wakes every expired sleeper.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	expired := c.popExpiredLocked()
	c.mu.Unlock()

	// Wake outside the lock
	for _, s := range expired {
		close(s.done)
	}
}

// Sleepers returns the number of goroutines parked in Sleep.
func (c *ManualClock) Sleepers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleepers)
}

func (c *ManualClock) popExpiredLocked() []*sleeper {
	var expired []*sleeper
	for c.sleepers.Len() > 0 {
		s := c.sleepers.Peek()
		if s.wakeAt.After(c.now) {
			break
		}
		heap.Pop(&c.sleepers)
		expired = append(expired, s)
	}
	return expired
}
