// Package kvstore provides the generic, namespaced key-value
// abstraction the event log, key store and subscription store are all
// built on. Exactly one backing implementation exists (SQLite); the
// interface exists so those three components depend on a contract
// rather than a concrete driver.
package kvstore

import "context"

// Entry is one key/value pair returned by Iter.
type Entry struct {
	Key   string
	Value []byte
}

// Store is a namespaced key-value store. Namespaces partition keys
// the way separate tables would, without requiring schema migrations
// per consumer.
type Store interface {
	// Put writes value under key in namespace, replacing any existing
	// value.
	Put(ctx context.Context, namespace, key string, value []byte) error

	// Get returns the value stored under key in namespace. ok is false
	// if no such key exists.
	Get(ctx context.Context, namespace, key string) (value []byte, ok bool, err error)

	// Delete removes key from namespace. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, namespace, key string) error

	// Iter returns every entry in namespace in key order.
	Iter(ctx context.Context, namespace string) ([]Entry, error)

	// Close releases the store's underlying resources.
	Close() error
}
