package reactor

import (
	"errors"
	"fmt"
)

// ErrDestroyed is logged (never returned) when an operation is invoked on a
// reactor after Destroy. Post-teardown calls are diagnostic no-ops so that
// late-firing event handlers do not crash their caller.
var ErrDestroyed = errors.New("reactor has been destroyed")

// ValidationError reports invalid constructor or call input, such as a nil
// initial state or a nil updater function. It is returned synchronously.
type ValidationError struct {
	// Field names the offending input.
	Field string
	// Reason explains why the input was rejected.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MutationError wraps an error returned by an updater function. The state is
// left unchanged when a mutation fails; the pre-mutation snapshot is never
// pushed to history.
type MutationError struct {
	// Action is the caller-supplied label of the failed update, if any.
	Action string
	// Err is the error returned by the updater.
	Err error
}

func (e *MutationError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("mutation %q failed: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("mutation failed: %v", e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// PluginInitError wraps an error returned by a plugin's Init. It is logged
// per plugin and does not abort initialization of the remaining plugins.
type PluginInitError struct {
	Plugin string
	Err    error
}

func (e *PluginInitError) Error() string {
	return fmt.Sprintf("plugin %q failed to initialize: %v", e.Plugin, e.Err)
}

func (e *PluginInitError) Unwrap() error { return e.Err }

// CancelReason describes why an asynchronous action invocation was cancelled.
type CancelReason int

const (
	// CancelExplicit means Cancel was called on the invocation's handle.
	CancelExplicit CancelReason = iota
	// CancelSuperseded means a newer invocation of the same action arrived
	// while this one was debouncing or in flight under the replace policy.
	CancelSuperseded
	// CancelDestroyed means the owning reactor was torn down.
	CancelDestroyed
)

func (r CancelReason) String() string {
	switch r {
	case CancelExplicit:
		return "cancelled"
	case CancelSuperseded:
		return "superseded"
	case CancelDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// CancellationError settles the handle of a cancelled action invocation. It
// is distinct from any error the wrapped function itself might produce, so
// call sites can tell a cancelled call from a failed one with errors.As.
type CancellationError struct {
	// Action is the name of the cancelled action.
	Action string
	// Reason tells whether the cancellation was explicit, a debounce or
	// replace supersession, or reactor teardown.
	Reason CancelReason
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("action %q %s", e.Action, e.Reason)
}

// AsyncActionError wraps an error produced by a wrapped asynchronous
// function after all configured retries were exhausted.
type AsyncActionError struct {
	// Action is the name of the failed action.
	Action string
	// Attempts is the total number of executions, including retries.
	Attempts int
	// Err is the last error produced by the wrapped function.
	Err error
}

func (e *AsyncActionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("action %q failed after %d attempts: %v", e.Action, e.Attempts, e.Err)
	}
	return fmt.Sprintf("action %q failed: %v", e.Action, e.Err)
}

func (e *AsyncActionError) Unwrap() error { return e.Err }

// IsCancellation reports whether err stems from a cancelled invocation
// rather than a failure of the wrapped function.
func IsCancellation(err error) bool {
	var ce *CancellationError
	return errors.As(err, &ce)
}
