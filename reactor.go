package reactor

import (
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
)

// Subscriber is notified once per committed, non-skipped update, in
// subscription order. Every subscriber receives its own deep-copied snapshot.
type Subscriber[S any] func(state S)

// Stats is a point-in-time snapshot of reactor counters.
type Stats struct {
	// Updates is the number of committed mutations.
	Updates uint64
	// Skipped is the number of updates dropped by the equality check.
	Skipped uint64
	// Errors is the number of failed mutations and async actions.
	Errors uint64
	// Notifications is the number of subscriber callback invocations.
	Notifications uint64
	// Pending is the number of asynchronous action invocations in flight.
	Pending int
}

type subscription[S any] struct {
	id uint64
	fn Subscriber[S]
}

// Reactor is a reactive state container. It owns the canonical state value
// exclusively: every read hands out a deep copy and every change goes through
// the mutation pipeline. A zero Reactor is not usable; construct with New.
type Reactor[S any] struct {
	id           string
	name         string
	logger       Logger
	actionPrefix string

	mu          deadlock.Mutex
	state       S
	middlewares []Middleware[S]
	subscribers []subscription[S]
	nextSubID   uint64
	history     *History[S]

	historyEnabled bool
	historyOpts    []HistoryOption

	plugins []Plugin[S]

	destroyed atomic.Bool

	statUpdates       atomic.Uint64
	statSkipped       atomic.Uint64
	statErrors        atomic.Uint64
	statNotifications atomic.Uint64

	// Async action bookkeeping, independent of the state lock.
	actMu      deadlock.Mutex
	pendTotal  int
	pendCounts map[string]int
	actionErrs map[string]error
	actions    []interface{ shutdown() }
}

// New creates a reactor owning a deep copy of the initial state. A nil
// initial state (nil pointer, map or interface) is rejected with a
// ValidationError. Plugins are initialized in registration order; a failing
// plugin is logged and skipped without aborting the rest.
func New[S any](initial S, opts ...Option[S]) (*Reactor[S], error) {
	if err := validateInitial(initial); err != nil {
		return nil, err
	}

	r := &Reactor[S]{
		id:           uuid.NewString(),
		logger:       NewDefaultLogger(),
		actionPrefix: "action",
		pendCounts:   make(map[string]int),
		actionErrs:   make(map[string]error),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.state = clone(initial)
	if r.historyEnabled {
		r.history = NewHistory(r.state, r.historyOpts...)
	}

	for _, p := range r.plugins {
		if err := p.Init(&PluginContext[S]{r: r}); err != nil {
			r.logger.Error("%v", &PluginInitError{Plugin: p.Name(), Err: err})
		}
	}

	return r, nil
}

func validateInitial[S any](initial S) error {
	rv := reflect.ValueOf(initial)
	if !rv.IsValid() {
		return &ValidationError{Field: "initial state", Reason: "must not be nil"}
	}
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Interface:
		if rv.IsNil() {
			return &ValidationError{Field: "initial state", Reason: "must not be nil"}
		}
	}
	return nil
}

// ID returns the unique identifier of this reactor instance.
func (r *Reactor[S]) ID() string { return r.id }

// Name returns the configured name, if any.
func (r *Reactor[S]) Name() string { return r.name }

// State returns a deep-copied snapshot of the current state.
func (r *Reactor[S]) State() S {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.state)
}

// Use appends middlewares to the chain.
func (r *Reactor[S]) Use(mw ...Middleware[S]) {
	if r.destroyed.Load() {
		r.logger.Warn("Use ignored: %v", ErrDestroyed)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw...)
}

// Subscribe registers a callback invoked with a state snapshot after every
// committed, non-skipped update, in subscription order. The returned function
// removes the subscription and is safe to call more than once.
func (r *Reactor[S]) Subscribe(fn Subscriber[S]) (unsubscribe func()) {
	if fn == nil || r.destroyed.Load() {
		return func() {}
	}

	r.mu.Lock()
	r.nextSubID++
	id := r.nextSubID
	r.subscribers = append(r.subscribers, subscription[S]{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, sub := range r.subscribers {
			if sub.id == id {
				r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Update runs the mutation pipeline for a single state transition:
//
//  1. the previous state is captured as a deep copy
//  2. the updater runs against a private candidate copy
//  3. before-hooks run with (prev, candidate); an error aborts the commit
//  4. if the candidate deep-equals the previous state the commit is skipped
//     entirely: no mutation, no history entry, no after-hooks, no
//     notification
//  5. otherwise the updater is applied to the live value, the transition is
//     recorded in history, after-hooks run and subscribers are notified
//
// An optional action label tags the transition for history grouping,
// exclusion and diagnostics. Updater errors surface as a MutationError to
// both the caller and OnError hooks; the state is left unchanged. After
// Destroy, Update is a no-op that logs a diagnostic.
func (r *Reactor[S]) Update(fn func(*S) error, action ...string) error {
	name := ""
	if len(action) > 0 {
		name = action[0]
	}

	if r.destroyed.Load() {
		r.logger.Warn("update %q ignored: %v", name, ErrDestroyed)
		return nil
	}
	if fn == nil {
		return &ValidationError{Field: "updater", Reason: "must not be nil"}
	}

	r.mu.Lock()

	prev := clone(r.state)
	candidate := clone(r.state)
	if err := fn(&candidate); err != nil {
		merr := &MutationError{Action: name, Err: err}
		r.statErrors.Add(1)
		r.runError(merr, name)
		r.mu.Unlock()
		return merr
	}

	if err := r.runBefore(&prev, &candidate, name); err != nil {
		r.statErrors.Add(1)
		r.runError(err, name)
		r.mu.Unlock()
		return err
	}

	if deepEqual(prev, candidate) {
		r.statSkipped.Add(1)
		r.mu.Unlock()
		return nil
	}

	if err := fn(&r.state); err != nil {
		// The updater succeeded on the candidate but failed on the live
		// value; restore the pre-mutation snapshot so history stays clean.
		r.state = clone(prev)
		merr := &MutationError{Action: name, Err: err}
		r.statErrors.Add(1)
		r.runError(merr, name)
		r.mu.Unlock()
		return merr
	}

	next := clone(r.state)
	if r.history != nil {
		r.history.Push(prev, next, name)
	}
	r.statUpdates.Add(1)

	afterErr := r.runAfter(&prev, &next, name)
	if afterErr != nil {
		r.statErrors.Add(1)
		r.runError(afterErr, name)
	}

	r.notifyLocked(next)
	r.mu.Unlock()
	return afterErr
}

// Set merges a partial state into the current state. Keys are dot-notation
// paths into struct fields or string-keyed maps. It is sugar for Update with
// an assignment updater.
func (r *Reactor[S]) Set(fields map[string]any, action ...string) error {
	return r.Update(func(s *S) error {
		return assignFields(s, fields)
	}, action...)
}

// Batch groups every Update performed inside fn into a single history entry,
// captured from the state just before the first nested update. Without a
// history manager, Batch degrades to simply invoking fn.
func (r *Reactor[S]) Batch(fn func()) {
	if fn == nil {
		return
	}
	if r.destroyed.Load() {
		r.logger.Warn("batch ignored: %v", ErrDestroyed)
		return
	}
	if r.history == nil {
		fn()
		return
	}
	r.history.StartBatch()
	defer r.history.EndBatch()
	fn()
}

// Undo steps the state one history entry backwards. History replay is not
// itself a user action: it writes directly into the live state, bypassing
// middleware, then notifies subscribers. Returns false at the terminal
// boundary or when history is disabled.
func (r *Reactor[S]) Undo() bool {
	if r.destroyed.Load() {
		r.logger.Warn("undo ignored: %v", ErrDestroyed)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.history == nil {
		return false
	}
	snap, ok := r.history.Undo()
	if !ok {
		return false
	}
	r.state = snap
	r.notifyLocked(clone(snap))
	return true
}

// Redo is the symmetric inverse of Undo.
func (r *Reactor[S]) Redo() bool {
	if r.destroyed.Load() {
		r.logger.Warn("redo ignored: %v", ErrDestroyed)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.history == nil {
		return false
	}
	snap, ok := r.history.Redo()
	if !ok {
		return false
	}
	r.state = snap
	r.notifyLocked(clone(snap))
	return true
}

// History returns the history manager, or nil when undo/redo is disabled.
func (r *Reactor[S]) History() *History[S] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history
}

// notifyLocked invokes subscribers in subscription order. Callers hold r.mu;
// each callback receives its own deep copy, so one subscriber mutating a
// snapshot cannot leak into the next. Callbacks must not call back into the
// reactor synchronously.
func (r *Reactor[S]) notifyLocked(snapshot S) {
	for _, sub := range r.subscribers {
		sub.fn(clone(snapshot))
		r.statNotifications.Add(1)
	}
}

// Loading reports whether any asynchronous action invocation is in flight.
func (r *Reactor[S]) Loading() bool {
	r.actMu.Lock()
	defer r.actMu.Unlock()
	return r.pendTotal > 0
}

// Pending returns the number of in-flight invocations of the named action.
func (r *Reactor[S]) Pending(action string) int {
	r.actMu.Lock()
	defer r.actMu.Unlock()
	return r.pendCounts[action]
}

// ActionErr returns the last non-stale, non-cancelled error of the named
// action. It is cleared when a later invocation of the same action commits
// successfully.
func (r *Reactor[S]) ActionErr(action string) error {
	r.actMu.Lock()
	defer r.actMu.Unlock()
	return r.actionErrs[action]
}

func (r *Reactor[S]) pendingInc(action string) {
	r.actMu.Lock()
	defer r.actMu.Unlock()
	r.pendTotal++
	r.pendCounts[action]++
}

func (r *Reactor[S]) pendingDec(action string) {
	r.actMu.Lock()
	defer r.actMu.Unlock()
	if r.pendTotal > 0 {
		r.pendTotal--
	}
	if r.pendCounts[action] > 0 {
		r.pendCounts[action]--
	}
}

func (r *Reactor[S]) setActionErr(action string, err error) {
	r.actMu.Lock()
	defer r.actMu.Unlock()
	r.actionErrs[action] = err
	r.statErrors.Add(1)
}

func (r *Reactor[S]) clearActionErr(action string) {
	r.actMu.Lock()
	defer r.actMu.Unlock()
	delete(r.actionErrs, action)
}

func (r *Reactor[S]) registerAction(a interface{ shutdown() }) {
	r.actMu.Lock()
	defer r.actMu.Unlock()
	r.actions = append(r.actions, a)
}

// Stats returns a snapshot of the reactor's counters.
func (r *Reactor[S]) Stats() Stats {
	r.actMu.Lock()
	pending := r.pendTotal
	r.actMu.Unlock()

	return Stats{
		Updates:       r.statUpdates.Load(),
		Skipped:       r.statSkipped.Load(),
		Errors:        r.statErrors.Load(),
		Notifications: r.statNotifications.Load(),
		Pending:       pending,
	}
}

// Destroyed reports whether Destroy has been called.
func (r *Reactor[S]) Destroyed() bool { return r.destroyed.Load() }

// Destroy tears the reactor down: pending debounce timers are stopped,
// in-flight action invocations are cancelled, plugins are destroyed, and
// subscribers, middlewares and history are cleared. Destroy is idempotent.
// It is not safe to race against a concurrent Update; subsequent operations
// are no-ops that log a diagnostic rather than panicking.
func (r *Reactor[S]) Destroy() {
	if !r.destroyed.CompareAndSwap(false, true) {
		return
	}

	r.actMu.Lock()
	actions := r.actions
	r.actions = nil
	r.actMu.Unlock()
	for _, a := range actions {
		a.shutdown()
	}

	for _, p := range r.plugins {
		p.Destroy()
	}

	r.mu.Lock()
	r.subscribers = nil
	r.middlewares = nil
	if r.history != nil {
		r.history.Clear()
		r.history = nil
	}
	r.mu.Unlock()

	r.logger.Debug("reactor %s destroyed", r.id)
}
