// Package reactor provides a reactive state container for interactive
// applications.
//
// reactor owns a single application state value and mediates every change to
// it. On top of the core mutation pipeline it layers three optional
// capabilities: change-interception middleware, a bounded undo/redo history,
// and an asynchronous action controller with debounce, retry, cancellation
// and concurrency-safety guarantees.
//
// Core components include:
//   - Reactor: the state container owning the canonical value, exposing
//     Update, Set, Batch, Subscribe and Destroy
//   - Middleware: ordered before/after/error hooks invoked around every
//     committed mutation
//   - History: bounded past/future stacks supporting undo, redo, batching,
//     exclusion, compression and action grouping
//   - Action: a wrapper around user-supplied asynchronous functions managing
//     request identity, concurrency policy, debounce and retry with backoff
//
// Key features include deep-copied snapshots (middleware and history never
// see aliases of the live state), equality-based commit skipping, strict
// commit ordering for synchronous updates, and stale-result suppression for
// overlapping asynchronous actions.
package reactor
