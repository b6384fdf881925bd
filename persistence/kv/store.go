// Package kv defines the key/value storage used by the runtime to persist
// stream definitions and stream processor states.
package kv

import (
	"context"
)

// Store is a collection of keyspaces.
type Store interface {
	// Open returns the keyspace at the given path.
	//
	// The path uniquely identifies the keyspace. It must not be empty. Each
	// element must be a non-empty string.
	Open(ctx context.Context, path ...string) (Keyspace, error)
}

// A Keyspace is an isolated collection of key/value pairs.
//
// Keys and values are opaque byte slices. An empty value is indistinguishable
// from an absent key.
type Keyspace interface {
	// Get returns the value associated with k, or an empty slice if k is not
	// present.
	Get(ctx context.Context, k []byte) (v []byte, err error)

	// Has returns true if k is present in the keyspace.
	Has(ctx context.Context, k []byte) (ok bool, err error)

	// Set associates v with k, replacing any existing value. An empty v
	// deletes k.
	Set(ctx context.Context, k, v []byte) error

	// Range calls fn for each key/value pair in the keyspace, in no particular
	// order, until fn returns false or an error.
	Range(ctx context.Context, fn RangeFunc) error

	// Close releases the keyspace. It does not affect the data it contains.
	Close() error
}

// A RangeFunc is called for each key/value pair visited by
// [Keyspace.Range].
//
// Returning a non-nil error stops ranging and causes Range to return that
// error. Returning false stops ranging without an error.
type RangeFunc func(ctx context.Context, k, v []byte) (ok bool, err error)
