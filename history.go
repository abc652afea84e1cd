package reactor

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

// DefaultHistoryLimit bounds the past stack when no explicit limit is given.
const DefaultHistoryLimit = 100

// HistoryEntry is one recorded state transition. Snapshot is a deep copy of
// the state before the transition; no aliases of the live state are retained.
type HistoryEntry[S any] struct {
	Snapshot  S
	Timestamp time.Time
	Action    string
}

type historyConfig struct {
	limit         int
	exclude       map[string]struct{}
	compress      bool
	groupByAction bool
}

// HistoryOption configures a History
type HistoryOption func(*historyConfig)

// WithLimit bounds the past stack to n entries; the oldest entries are
// evicted first. A limit of 0 causes every push to be evicted immediately,
// making undo permanently unavailable.
func WithLimit(n int) HistoryOption {
	return func(c *historyConfig) {
		if n >= 0 {
			c.limit = n
		}
	}
}

// WithExclude marks action names whose transitions never create history
// entries. Excluded pushes still advance the current snapshot.
func WithExclude(actions ...string) HistoryOption {
	return func(c *historyConfig) {
		for _, a := range actions {
			c.exclude[a] = struct{}{}
		}
	}
}

// WithCompression merges a push into the most recent past entry when that
// entry's snapshot deep-equals the new transition's previous state.
func WithCompression() HistoryOption {
	return func(c *historyConfig) { c.compress = true }
}

// WithActionGrouping merges consecutive pushes carrying the same non-empty
// action label into a single past entry.
func WithActionGrouping() HistoryOption {
	return func(c *historyConfig) { c.groupByAction = true }
}

// History is a bounded undo/redo manager over deep-copied state snapshots.
// It is created lazily by the reactor when undo/redo is enabled, and is safe
// for concurrent use.
type History[S any] struct {
	mu     deadlock.Mutex
	cfg    historyConfig
	past   []HistoryEntry[S]
	future []HistoryEntry[S]
	// current mirrors the latest committed state. Undo moves it backwards,
	// redo forwards.
	current S

	batching   bool
	batchFirst *HistoryEntry[S]
	batchCount int
}

// NewHistory creates a history manager whose current snapshot is a deep copy
// of the given state.
func NewHistory[S any](current S, opts ...HistoryOption) *History[S] {
	cfg := historyConfig{
		limit:   DefaultHistoryLimit,
		exclude: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &History[S]{cfg: cfg, current: clone(current)}
}

// Push records a committed transition from prev to next tagged with the
// given action label. Depending on configuration the transition may be
// excluded, buffered into an open batch, merged into the most recent entry,
// or pushed as a new past entry (evicting the oldest beyond the limit and
// clearing the future stack).
func (h *History[S]) Push(prev, next S, action string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, excluded := h.cfg.exclude[action]; excluded {
		h.current = clone(next)
		return
	}

	if h.batching {
		if h.batchFirst == nil {
			h.batchFirst = &HistoryEntry[S]{Snapshot: clone(prev), Timestamp: time.Now(), Action: action}
		}
		h.batchCount++
		h.current = clone(next)
		return
	}

	if h.cfg.groupByAction && action != "" && len(h.past) > 0 && h.past[len(h.past)-1].Action == action {
		h.current = clone(next)
		h.future = nil
		return
	}

	if h.cfg.compress && len(h.past) > 0 && deepEqual(h.past[len(h.past)-1].Snapshot, prev) {
		h.current = clone(next)
		h.future = nil
		return
	}

	h.appendPast(HistoryEntry[S]{Snapshot: clone(prev), Timestamp: time.Now(), Action: action})
	h.future = nil
	h.current = clone(next)
}

// appendPast pushes an entry and evicts the oldest beyond the limit.
// Eviction runs after any merge decision has been taken (evict-after-merge).
func (h *History[S]) appendPast(e HistoryEntry[S]) {
	h.past = append(h.past, e)
	if over := len(h.past) - h.cfg.limit; over > 0 {
		h.past = append(h.past[:0:0], h.past[over:]...)
	}
}

// Undo steps one entry backwards. It returns a deep copy of the restored
// snapshot, or false when the past stack is empty (terminal boundary).
func (h *History[S]) Undo() (S, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero S
	if len(h.past) == 0 {
		return zero, false
	}

	top := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append(h.future, HistoryEntry[S]{Snapshot: h.current, Timestamp: time.Now(), Action: top.Action})
	h.current = top.Snapshot
	return clone(top.Snapshot), true
}

// Redo is the symmetric inverse of Undo.
func (h *History[S]) Redo() (S, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero S
	if len(h.future) == 0 {
		return zero, false
	}

	top := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.appendPast(HistoryEntry[S]{Snapshot: h.current, Timestamp: time.Now(), Action: top.Action})
	h.current = top.Snapshot
	return clone(top.Snapshot), true
}

// StartBatch begins buffering pushes. Until EndBatch, only the first buffered
// snapshot is retained.
func (h *History[S]) StartBatch() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batching = true
	h.batchFirst = nil
	h.batchCount = 0
}

// EndBatch flushes the open batch as a single past entry. Only the first
// buffered snapshot is flushed: the other buffered entries are intermediate
// states, and a single-step undo must revert the whole batch.
func (h *History[S]) EndBatch() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.batching {
		return
	}
	h.batching = false

	if h.batchFirst == nil {
		return
	}
	h.appendPast(*h.batchFirst)
	h.future = nil
	h.batchFirst = nil
	h.batchCount = 0
}

// Clear empties both stacks. The current snapshot is untouched.
func (h *History[S]) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.past = nil
	h.future = nil
	h.batchFirst = nil
	h.batchCount = 0
}

// CanUndo reports whether the past stack is non-empty.
func (h *History[S]) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past) > 0
}

// CanRedo reports whether the future stack is non-empty.
func (h *History[S]) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future) > 0
}

// PastLen returns the number of undoable entries.
func (h *History[S]) PastLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past)
}

// FutureLen returns the number of redoable entries.
func (h *History[S]) FutureLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future)
}

// entriesInfo returns a read-only projection of the past stack for DevTools
// exports.
func (h *History[S]) entriesInfo() []HistoryEntryInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]HistoryEntryInfo, len(h.past))
	for i, e := range h.past {
		out[i] = HistoryEntryInfo{Action: e.Action, Timestamp: e.Timestamp}
	}
	return out
}
