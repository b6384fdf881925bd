package streamprocessing

import (
	"context"
	"fmt"

	"github.com/evsrc/runtime/internal/cborx/cborkv"
	"github.com/evsrc/runtime/persistence/kv"
	"github.com/evsrc/runtime/tenancy"
)

// StateRepository stores the state of stream processors.
//
// Each tenant's states are stored in a separate keyspace. Updates are
// last-writer-wins per key; there is no locking across keys.
type StateRepository struct {
	Keyspaces kv.Store
}

// Get returns the state of the stream processor with the given key. ok is
// false if the state has never been persisted.
func (r *StateRepository) Get(
	ctx context.Context,
	tenant tenancy.ID,
	key Key,
) (_ State, ok bool, _ error) {
	ks, err := r.open(ctx, tenant)
	if err != nil {
		return State{}, false, err
	}
	defer ks.Close()

	s, ok, err := cborkv.Get[State](ctx, ks, key.bytes())
	if err != nil {
		return State{}, false, fmt.Errorf("unable to get state of stream processor %s: %w", key, err)
	}

	return s, ok, nil
}

// Set persists the state of the stream processor with the given key.
func (r *StateRepository) Set(
	ctx context.Context,
	tenant tenancy.ID,
	key Key,
	s State,
) error {
	ks, err := r.open(ctx, tenant)
	if err != nil {
		return err
	}
	defer ks.Close()

	if err := cborkv.Set(ctx, ks, key.bytes(), s); err != nil {
		return fmt.Errorf("unable to set state of stream processor %s: %w", key, err)
	}

	return nil
}

func (r *StateRepository) open(ctx context.Context, tenant tenancy.ID) (kv.Keyspace, error) {
	ks, err := r.Keyspaces.Open(ctx, "stream-processor-states", tenant.String())
	if err != nil {
		return nil, fmt.Errorf("unable to open stream processor states: %w", err)
	}
	return ks, nil
}
