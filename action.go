package reactor

import (
	"context"
	"sync"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Concurrency selects how overlapping invocations of the same action
// interact.
type Concurrency int

const (
	// Parallel lets invocations run independently of each other.
	Parallel Concurrency = iota
	// Replace signals any in-flight invocation to cancel before a new one
	// starts, and discards results of invocations that were superseded.
	Replace
	// Queue runs invocations strictly one after another in FIFO order.
	Queue
)

func (c Concurrency) String() string {
	switch c {
	case Parallel:
		return "parallel"
	case Replace:
		return "replace"
	case Queue:
		return "queue"
	default:
		return "unknown"
	}
}

// Backoff selects the delay strategy between retry attempts.
type Backoff int

const (
	// BackoffLinear waits the configured delay before every retry.
	BackoffLinear Backoff = iota
	// BackoffExponential doubles the delay after every retry, starting from
	// the configured delay.
	BackoffExponential
)

// AsyncFunc is a user-supplied asynchronous action body. It must observe ctx
// for cooperative cancellation; the controller enforces stale-result
// suppression at the commit boundary regardless of whether the body actually
// stopped.
type AsyncFunc[R any] func(ctx context.Context, args ...any) (R, error)

type actionConfig struct {
	concurrency    Concurrency
	concurrencySet bool
	debounce       time.Duration
	retryAttempts  int
	retryDelay     time.Duration
	backoff        Backoff
	retryIf        func(error) bool
}

// ActionOption configures a defined action
type ActionOption func(*actionConfig)

// WithConcurrency sets the explicit concurrency policy
func WithConcurrency(c Concurrency) ActionOption {
	return func(cfg *actionConfig) {
		cfg.concurrency = c
		cfg.concurrencySet = true
	}
}

// WithDebounce defers execution until d elapses with no new invocation; each
// new call restarts the window and supersedes the deferred one. Unless an
// explicit policy is set, a debounced action uses Replace concurrency.
func WithDebounce(d time.Duration) ActionOption {
	return func(cfg *actionConfig) {
		if d > 0 {
			cfg.debounce = d
		}
	}
}

// WithRetry retries a failing body up to attempts additional times, waiting
// delay between attempts (see WithBackoff). Exhaustion surfaces the last
// error.
func WithRetry(attempts int, delay time.Duration) ActionOption {
	return func(cfg *actionConfig) {
		if attempts > 0 {
			cfg.retryAttempts = attempts
		}
		if delay > 0 {
			cfg.retryDelay = delay
		}
	}
}

// WithBackoff sets the retry delay strategy
func WithBackoff(b Backoff) ActionOption {
	return func(cfg *actionConfig) { cfg.backoff = b }
}

// WithRetryIf installs a predicate that may veto further retries for a given
// error
func WithRetryIf(retryIf func(error) bool) ActionOption {
	return func(cfg *actionConfig) { cfg.retryIf = retryIf }
}

// Action wraps an asynchronous function into a dispatchable operation with
// per-invocation request identity, concurrency policy, debounce, retry and
// cancellation. Create with DefineAction.
type Action[S, R any] struct {
	name   string
	fn     AsyncFunc[R]
	commit func(*S, R)
	cfg    actionConfig
	r      *Reactor[S]

	mu             deadlock.Mutex
	counter        uint64
	inflight       map[uint64]*Handle[R]
	queueTail      *Handle[R]
	debounceTimer  *time.Timer
	debounceHandle *Handle[R]
	debounceArgs   []any
	closed         bool
}

// DefineAction wraps fn as a named asynchronous action on the reactor. On a
// successful, non-stale, non-cancelled completion, commit (if non-nil) is
// applied to the state through the normal Update path, tagged
// "<prefix>:<name>:success". A nil commit settles the handle only.
func DefineAction[S, R any](r *Reactor[S], name string, fn AsyncFunc[R], commit func(*S, R), opts ...ActionOption) *Action[S, R] {
	cfg := actionConfig{retryDelay: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &Action[S, R]{
		name:     name,
		fn:       fn,
		commit:   commit,
		cfg:      cfg,
		r:        r,
		inflight: make(map[uint64]*Handle[R]),
	}
	r.registerAction(a)
	return a
}

// Name returns the action's name.
func (a *Action[S, R]) Name() string { return a.name }

// effective returns the concurrency policy in force: the explicit one, or
// Replace implicitly when a debounce delay is configured.
func (a *Action[S, R]) effective() Concurrency {
	if !a.cfg.concurrencySet && a.cfg.debounce > 0 {
		return Replace
	}
	return a.cfg.concurrency
}

// Dispatch invokes the action. It returns immediately with a cancellable,
// awaitable handle; the body runs on its own goroutine (after the debounce
// window, if configured). After reactor teardown the returned handle is
// already settled with a CancellationError.
func (a *Action[S, R]) Dispatch(ctx context.Context, args ...any) *Handle[R] {
	if ctx == nil {
		ctx = context.Background()
	}

	a.mu.Lock()
	a.counter++
	id := a.counter

	hctx, cancel := context.WithCancelCause(ctx)
	h := &Handle[R]{
		id:     id,
		action: a.name,
		ctx:    hctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	h.cancelHook = func() { a.cancelHandle(h) }

	if a.closed || a.r.destroyed.Load() {
		a.mu.Unlock()
		a.r.logger.Warn("dispatch %q ignored: %v", a.name, ErrDestroyed)
		cerr := &CancellationError{Action: a.name, Reason: CancelDestroyed}
		cancel(cerr)
		h.settle(*new(R), cerr)
		return h
	}

	if a.cfg.debounce > 0 {
		a.supersedeDebounceLocked()
		a.debounceHandle = h
		a.debounceArgs = args
		a.debounceTimer = time.AfterFunc(a.cfg.debounce, func() {
			a.mu.Lock()
			if a.debounceHandle != h {
				a.mu.Unlock()
				return
			}
			a.debounceTimer = nil
			a.debounceHandle = nil
			a.debounceArgs = nil
			// An explicit Queue policy still applies to debounced
			// invocations; join the chain at fire time.
			if a.effective() == Queue {
				h.queuePrev = a.queueTail
				a.queueTail = h
			}
			a.mu.Unlock()
			a.execute(h, args)
		})
		a.mu.Unlock()
		return h
	}

	if a.effective() == Queue {
		h.queuePrev = a.queueTail
		a.queueTail = h
	}
	a.mu.Unlock()

	go a.execute(h, args)
	return h
}

// supersedeDebounceLocked cancels the deferred invocation waiting behind the
// debounce timer, if any. Its handle settles with a CancellationError whose
// reason is CancelSuperseded.
func (a *Action[S, R]) supersedeDebounceLocked() {
	if a.debounceTimer == nil {
		return
	}
	a.debounceTimer.Stop()
	prev := a.debounceHandle
	a.debounceTimer = nil
	a.debounceHandle = nil
	a.debounceArgs = nil

	if prev != nil {
		cerr := &CancellationError{Action: a.name, Reason: CancelSuperseded}
		prev.cancel(cerr)
		prev.settle(*new(R), cerr)
	}
}

// execute runs one invocation: replace-cancellation of in-flight peers,
// queue ordering, pending bookkeeping, the retry loop, and settlement.
func (a *Action[S, R]) execute(h *Handle[R], args []any) {
	policy := a.effective()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		h.settle(*new(R), &CancellationError{Action: a.name, Reason: CancelDestroyed})
		return
	}
	if policy == Replace {
		for _, other := range a.inflight {
			other.cancel(&CancellationError{Action: a.name, Reason: CancelSuperseded})
		}
	}
	a.inflight[h.id] = h
	prev := h.queuePrev
	a.mu.Unlock()

	a.r.pendingInc(a.name)

	if prev != nil {
		// FIFO: await the predecessor's settlement, ignoring its outcome.
		select {
		case <-prev.done:
			// Unlink so the settled predecessor chain can be collected.
			a.mu.Lock()
			h.queuePrev = nil
			a.mu.Unlock()
		case <-h.ctx.Done():
			a.mu.Lock()
			delete(a.inflight, h.id)
			if a.queueTail == h {
				a.queueTail = nil
			}
			h.queuePrev = nil
			a.mu.Unlock()
			a.r.pendingDec(a.name)
			cerr, ok := context.Cause(h.ctx).(*CancellationError)
			if !ok {
				cerr = &CancellationError{Action: a.name, Reason: CancelExplicit}
			}
			h.settle(*new(R), cerr)
			return
		}
	}

	res, err := a.runWithRetry(h, args)
	a.finish(h, policy, res, err, h.ctx.Err() != nil)
}

// runWithRetry executes the body, retrying per configuration. The delay
// before retry k (0-based) is delay for linear backoff and delay<<k for
// exponential. A RetryIf veto or a cancelled context stops retrying.
func (a *Action[S, R]) runWithRetry(h *Handle[R], args []any) (R, error) {
	var res R
	var err error

	attempts := 0
	for {
		res, err = a.fn(h.ctx, args...)
		attempts++
		if err == nil || h.ctx.Err() != nil {
			break
		}
		if attempts > a.cfg.retryAttempts {
			break
		}
		if a.cfg.retryIf != nil && !a.cfg.retryIf(err) {
			break
		}

		delay := a.cfg.retryDelay
		if a.cfg.backoff == BackoffExponential {
			delay = a.cfg.retryDelay << (attempts - 1)
		}
		select {
		case <-time.After(delay):
		case <-h.ctx.Done():
			return res, err
		}
	}

	if err != nil && !IsCancellation(err) && h.ctx.Err() == nil {
		err = &AsyncActionError{Action: a.name, Attempts: attempts, Err: err}
	}
	return res, err
}

// finish settles one invocation and, when the result is neither cancelled
// nor stale, commits it to state. Stale-result suppression compares the
// invocation's request id against the latest issued counter at settlement
// time, not arrival order: the state reflects only the latest non-stale
// outcome.
func (a *Action[S, R]) finish(h *Handle[R], policy Concurrency, res R, err error, cancelled bool) {
	a.mu.Lock()
	delete(a.inflight, h.id)
	if a.queueTail == h {
		a.queueTail = nil
	}
	stale := policy == Replace && h.id != a.counter
	a.mu.Unlock()

	a.r.pendingDec(a.name)

	if err == nil {
		// A superseded body that completed anyway still settles its own
		// handle with the real outcome; only the commit is suppressed.
		if !cancelled && !stale {
			if a.commit != nil {
				label := a.r.actionPrefix + ":" + a.name + ":success"
				if uerr := a.r.Update(func(s *S) error {
					a.commit(s, res)
					return nil
				}, label); uerr != nil {
					a.r.logger.Error("commit of action %q failed: %v", a.name, uerr)
				}
			}
			a.r.clearActionErr(a.name)
		}
		h.settle(res, nil)
		return
	}

	if cancelled {
		cerr, ok := context.Cause(h.ctx).(*CancellationError)
		if !ok {
			cerr = &CancellationError{Action: a.name, Reason: CancelExplicit}
		}
		h.settle(*new(R), cerr)
		return
	}

	if stale {
		// Discarded silently: state and the error field are left untouched,
		// but the handle settles with the real outcome for local use.
		h.settle(res, err)
		return
	}

	a.r.setActionErr(a.name, err)
	h.settle(res, err)
}

// cancelHandle implements Handle.Cancel: it synchronously marks the handle
// cancelled, clears a pending debounce timer owned by this handle, signals
// the cancellation context, and settles the handle with a CancellationError.
func (a *Action[S, R]) cancelHandle(h *Handle[R]) {
	cerr := &CancellationError{Action: a.name, Reason: CancelExplicit}

	a.mu.Lock()
	if a.debounceHandle == h {
		a.debounceTimer.Stop()
		a.debounceTimer = nil
		a.debounceHandle = nil
		a.debounceArgs = nil
	}
	a.mu.Unlock()

	h.cancel(cerr)
	h.settle(*new(R), cerr)
}

// shutdown is called by Reactor.Destroy. It stops the debounce timer,
// cancels in-flight invocations and rejects their handles.
func (a *Action[S, R]) shutdown() {
	a.mu.Lock()
	a.closed = true
	a.supersedeDebounceLocked()
	inflight := make([]*Handle[R], 0, len(a.inflight))
	for _, h := range a.inflight {
		inflight = append(inflight, h)
	}
	a.mu.Unlock()

	for _, h := range inflight {
		cerr := &CancellationError{Action: a.name, Reason: CancelDestroyed}
		h.cancel(cerr)
		h.settle(*new(R), cerr)
	}
}

// Handle is the cancellable, awaitable result of one action dispatch. It
// always settles exactly once: with the body's real outcome, or with a
// CancellationError.
type Handle[R any] struct {
	id     uint64
	action string

	ctx    context.Context
	cancel context.CancelCauseFunc

	cancelHook func()

	once   sync.Once
	done   chan struct{}
	result R
	err    error

	queuePrev *Handle[R]
}

// RequestID returns the invocation's monotonic per-action request id.
func (h *Handle[R]) RequestID() uint64 { return h.id }

// Action returns the name of the dispatched action.
func (h *Handle[R]) Action() string { return h.action }

// Done returns a channel closed when the handle settles.
func (h *Handle[R]) Done() <-chan struct{} { return h.done }

// Await blocks until the handle settles or ctx is done.
func (h *Handle[R]) Await(ctx context.Context) (R, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Result returns the settled outcome. It is only valid after Done is closed.
func (h *Handle[R]) Result() (R, error) {
	select {
	case <-h.done:
		return h.result, h.err
	default:
		var zero R
		return zero, &ValidationError{Field: "handle", Reason: "not settled yet"}
	}
}

// Err returns the settled error, or nil if the handle has not settled or
// settled successfully.
func (h *Handle[R]) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Cancel synchronously marks the invocation cancelled. The underlying body
// is signalled cooperatively through its context; whether or not it actually
// stops, its result will never be committed to state.
func (h *Handle[R]) Cancel() {
	h.cancelHook()
}

func (h *Handle[R]) settle(res R, err error) {
	h.once.Do(func() {
		h.result = res
		h.err = err
		close(h.done)
	})
}
