// Package cborjournal reads and writes CBOR encoded journal records.
package cborjournal

import (
	"context"
	"errors"
	"fmt"

	"github.com/evsrc/runtime/internal/cborx"
	"github.com/evsrc/runtime/persistence/journal"
)

// Get reads the record at the given position.
func Get[R any](
	ctx context.Context,
	j journal.Journal,
	pos journal.Position,
) (R, bool, error) {
	var rec R

	data, ok, err := j.Get(ctx, pos)
	if !ok || err != nil {
		return rec, false, err
	}

	if err := cborx.Unmarshal(data, &rec); err != nil {
		return rec, false, fmt.Errorf("unable to unmarshal journal record: %w", err)
	}

	return rec, true, nil
}

// Range invokes fn for each record in j, in order, starting at begin.
func Range[R any](
	ctx context.Context,
	j journal.Journal,
	begin journal.Position,
	fn func(context.Context, journal.Position, R) (bool, error),
) error {
	return j.Range(
		ctx,
		begin,
		func(ctx context.Context, pos journal.Position, data []byte) (bool, error) {
			var rec R
			if err := cborx.Unmarshal(data, &rec); err != nil {
				return false, fmt.Errorf("unable to unmarshal journal record: %w", err)
			}

			return fn(ctx, pos, rec)
		},
	)
}

// Append marshals rec to its binary representation and appends it to j.
func Append[R any](
	ctx context.Context,
	j journal.Journal,
	end journal.Position,
	rec R,
) error {
	data, err := cborx.Marshal(rec)
	if err != nil {
		return fmt.Errorf("unable to marshal journal record: %w", err)
	}

	return j.Append(ctx, end, data)
}

// LastRecord returns the most recent record in j. ok is false if j is empty.
func LastRecord[R any](
	ctx context.Context,
	j journal.Journal,
) (_ journal.Position, _ R, ok bool, _ error) {
	var rec R

	pos, data, err := journal.LastRecord(ctx, j)
	if errors.Is(err, journal.ErrNotFound) {
		return 0, rec, false, nil
	}
	if err != nil {
		return 0, rec, false, err
	}

	if err := cborx.Unmarshal(data, &rec); err != nil {
		return 0, rec, false, fmt.Errorf("unable to unmarshal journal record: %w", err)
	}

	return pos, rec, true, nil
}
