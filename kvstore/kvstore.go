// Package kvstore defines the persistent key/value store adapter consumed by
// the dataset store and the updater, plus two implementations: a map-backed
// Memory store and a SQLite-backed store.
//
// The sync engine treats the adapter as eventually consistent: writes are
// fire-and-forget from the caller's point of view and a failed write never
// rolls back in-memory state. Consumers must not depend on which
// implementation sits behind the interface.
package kvstore

import "context"

// Listener observes one key's changes. remote reports whether the change
// originated outside this process (another writer on the same backing file);
// the built-in implementations only fire local changes.
type Listener func(key, oldValue, newValue string, remote bool)

// Token identifies one registered listener for Off.
type Token string

// Store is the persistent key/value adapter.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent;
	// absence is not an error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes key to value, creating or replacing it.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists all keys currently present.
	Keys(ctx context.Context) ([]string, error)

	// On registers a listener for changes to key.
	On(key string, l Listener) Token

	// Off removes one listener. Reports whether it was present.
	Off(token Token) bool

	// Close releases the store's resources.
	Close() error
}
