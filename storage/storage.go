// Package storage provides persistence backends for the reactor persist
// plugin.
//
// The reactor core treats stored payloads as opaque bytes: versioning,
// migration and expiry are entirely the concern of the collaborator sitting
// on top of a Store.
package storage

import "errors"

// ErrNotFound is returned by Get and Remove when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Store is a minimal key-value persistence backend.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Set stores value under key, overwriting any previous value.
	Set(key string, value []byte) error

	// Remove deletes the value stored under key, or returns ErrNotFound.
	Remove(key string) error

	// Close releases backend resources.
	Close() error
}
