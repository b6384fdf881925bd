// Package streams defines the positions, identifiers and storage contracts of
// event streams.
package streams

import (
	"fmt"

	"github.com/evsrc/runtime/events"
	"github.com/google/uuid"
)

// Position is the offset of an event within a stream.
type Position uint64

// Start is the position of the first event in every stream.
const Start Position = 0

// Next returns the position that follows p.
func (p Position) Next() Position {
	return p + 1
}

// PositionRange is a contiguous range of positions within a stream.
type PositionRange struct {
	From   Position
	Length uint64
}

// End returns the position after the last position in the range.
func (r PositionRange) End() Position {
	return r.From + Position(r.Length)
}

// ID uniquely identifies a stream within a scope.
type ID uuid.UUID

// EventLog is the ID of the root event log.
var EventLog ID

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// ScopeID identifies a scope, an isolated set of streams.
type ScopeID uuid.UUID

// DefaultScope is the scope used when no other scope is specified.
var DefaultScope ScopeID

func (id ScopeID) String() string {
	return uuid.UUID(id).String()
}

// PartitionID identifies a partition of a stream.
type PartitionID string

// NoPartition is the partition of events in unpartitioned streams.
const NoPartition PartitionID = ""

// Event is a committed event as it appears within a particular stream.
type Event struct {
	Event       events.CommittedEvent
	Position    Position
	Partition   PartitionID
	Partitioned bool
}

func (e Event) String() string {
	if e.Partitioned {
		return fmt.Sprintf(
			"event log sequence number %d at position %d in partition %q",
			e.Event.EventLogSequenceNumber,
			e.Position,
			e.Partition,
		)
	}

	return fmt.Sprintf(
		"event log sequence number %d at position %d",
		e.Event.EventLogSequenceNumber,
		e.Position,
	)
}
