package journal

import (
	"context"
	"errors"
)

// Position is the position of a record within a [Journal]. The first record is
// always at position 0.
type Position uint64

// A RangeFunc is a function used to range over the records in a [Journal].
//
// If err is non-nil, ranging stops and err is propagated up the stack.
// Otherwise, if ok is false, ranging stops without any error being propagated.
type RangeFunc func(context.Context, Position, []byte) (ok bool, err error)

// ErrConflict is returned by [Journal.Append] if there is already a record at
// the specified position.
var ErrConflict = errors.New("optimistic concurrency conflict")

// A Journal is an append-only log of binary records.
type Journal interface {
	// Bounds returns the half-open range [begin, end) describing the positions
	// of the journal records that are available for reading.
	Bounds(ctx context.Context) (begin, end Position, err error)

	// Get returns the record at the given position.
	//
	// ok is false if the record does not exist, either because it has been
	// truncated or because the given position has not been written yet.
	Get(ctx context.Context, pos Position) (rec []byte, ok bool, err error)

	// Range invokes fn for each record in the journal, in order, starting with
	// the record at the given position.
	Range(ctx context.Context, begin Position, fn RangeFunc) error

	// Append adds a record to the journal.
	//
	// end must be the next "unused" position in the journal. The first
	// position is always 0.
	//
	// If there is already a record at the given position then [ErrConflict] is
	// returned, indicating an optimistic concurrency conflict.
	//
	// If end is greater than the next position the behavior is undefined.
	Append(ctx context.Context, end Position, rec []byte) error

	// Close closes the journal.
	Close() error
}

// ErrNotFound is returned by [LastRecord] when the journal is empty.
var ErrNotFound = errors.New("record not found")

// LastRecord returns the most recent record in the journal.
func LastRecord(ctx context.Context, j Journal) (Position, []byte, error) {
	begin, end, err := j.Bounds(ctx)
	if err != nil {
		return 0, nil, err
	}

	if begin == end {
		return 0, nil, ErrNotFound
	}

	pos := end - 1
	rec, ok, err := j.Get(ctx, pos)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, ErrNotFound
	}

	return pos, rec, nil
}
