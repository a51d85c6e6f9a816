package core

import (
	"sync"
	"time"
)

const defaultCycleHistoryCapacity = 32

// CycleRecord captures one completed callback invocation.
type CycleRecord struct {
	Seq        uint64
	TaskName   string
	Priority   TaskPriority
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// cycleHistory is a fixed-size ring of the most recent cycles
type cycleHistory struct {
	mu    sync.Mutex
	items []CycleRecord
	head  int
	count int
}

func newCycleHistory(capacity int) *cycleHistory {
	if capacity < 1 {
		capacity = defaultCycleHistoryCapacity
	}
	return &cycleHistory{items: make([]CycleRecord, capacity)}
}

func (h *cycleHistory) Add(record CycleRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

// Recent returns up to limit records, newest first.
func (h *cycleHistory) Recent(limit int) []CycleRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]CycleRecord, 0, limit)
	for i := range limit {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

func (h *cycleHistory) Last() (CycleRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return CycleRecord{}, false
	}

	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx], true
}
