// Package cborkv reads and writes CBOR encoded key/value pairs.
package cborkv

import (
	"context"
	"fmt"

	"github.com/evsrc/runtime/internal/cborx"
	"github.com/evsrc/runtime/persistence/kv"
)

// Get returns the value associated with k.
func Get[V any](
	ctx context.Context,
	ks kv.Keyspace,
	k []byte,
) (V, bool, error) {
	var v V

	data, err := ks.Get(ctx, k)
	if err != nil || len(data) == 0 {
		return v, false, err
	}

	if err := cborx.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("unable to unmarshal value: %w", err)
	}

	return v, true, nil
}

// Set associates a value with k.
func Set[V any](
	ctx context.Context,
	ks kv.Keyspace,
	k []byte,
	v V,
) error {
	data, err := cborx.Marshal(v)
	if err != nil {
		return fmt.Errorf("unable to marshal value: %w", err)
	}
	return ks.Set(ctx, k, data)
}

// Range invokes fn for each key in ks.
//
// The order and read isolation is undefined.
func Range[V any](
	ctx context.Context,
	ks kv.Keyspace,
	fn func(context.Context, []byte, V) (bool, error),
) error {
	return ks.Range(
		ctx,
		func(ctx context.Context, k, data []byte) (bool, error) {
			var v V
			if err := cborx.Unmarshal(data, &v); err != nil {
				return false, fmt.Errorf("unable to unmarshal value: %w", err)
			}

			return fn(ctx, k, v)
		},
	)
}
