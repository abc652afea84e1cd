package reactor

// Middleware intercepts the mutation pipeline around every committed update.
// All hooks are optional. Before-hooks run in registration order prior to the
// commit, after-hooks run in registration order once the live state has been
// mutated, and OnError runs (in registration order) when the updater or any
// hook fails.
//
// Hooks receive deep-copied snapshots and must treat them as read-only; the
// pipeline does not enforce this, but downstream guarantees assume it. Hooks
// run inside the commit critical section and must not call back into the
// reactor.
type Middleware[S any] struct {
	// Name identifies the middleware in diagnostics and DevTools exports.
	Name string

	// OnBeforeUpdate runs before the commit with the previous state and the
	// candidate next state. Returning an error aborts the commit.
	OnBeforeUpdate func(prev, next *S, action string) error

	// OnAfterUpdate runs after the live state has been mutated.
	OnAfterUpdate func(prev, next *S, action string) error

	// OnError runs when the updater or another hook fails.
	OnError func(err error, action string)
}

// runBefore invokes all before-hooks in registration order. The first error
// stops the chain.
func (r *Reactor[S]) runBefore(prev, next *S, action string) error {
	for _, mw := range r.middlewares {
		if mw.OnBeforeUpdate == nil {
			continue
		}
		if err := mw.OnBeforeUpdate(prev, next, action); err != nil {
			return err
		}
	}
	return nil
}

// runAfter invokes all after-hooks in registration order. Hook errors are
// reported to OnError hooks but do not undo the commit.
func (r *Reactor[S]) runAfter(prev, next *S, action string) error {
	var firstErr error
	for _, mw := range r.middlewares {
		if mw.OnAfterUpdate == nil {
			continue
		}
		if err := mw.OnAfterUpdate(prev, next, action); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// runError invokes all OnError hooks in registration order.
func (r *Reactor[S]) runError(err error, action string) {
	for _, mw := range r.middlewares {
		if mw.OnError != nil {
			mw.OnError(err, action)
		}
	}
}
