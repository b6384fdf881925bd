package streams

import (
	"context"

	"github.com/evsrc/runtime/events"
	"github.com/evsrc/runtime/tenancy"
)

// Reader reads events from streams.
type Reader interface {
	// FetchNext returns the event at the given position, which is the next
	// event to be processed by a consumer that has processed every event
	// before it. ok is false if there is no such event yet.
	FetchNext(ctx context.Context, scope ScopeID, stream ID, pos Position) (_ Event, ok bool, _ error)

	// FetchRange returns the events within the given range, in order. It
	// returns fewer events than requested if the stream ends within the
	// range. Events read from the [EventLog] are checked to be in sequence.
	FetchRange(ctx context.Context, scope ScopeID, stream ID, r PositionRange) ([]Event, error)
}

// Writer writes events to derived streams.
type Writer interface {
	// Write appends an event to the end of a stream.
	//
	// It is idempotent if the event at the end of the stream already has the
	// same event log sequence number, allowing a write to be retried safely.
	Write(ctx context.Context, scope ScopeID, stream ID, ev events.CommittedEvent, partition PartitionID) error
}

// DefinitionRepository stores the encoded definitions of derived streams.
type DefinitionRepository interface {
	// GetDefinition returns the encoded definition of a stream.
	GetDefinition(ctx context.Context, scope ScopeID, stream ID) (_ []byte, ok bool, _ error)

	// PersistDefinition stores the encoded definition of a stream, replacing
	// any existing definition.
	PersistDefinition(ctx context.Context, scope ScopeID, stream ID, def []byte) error
}

// Store is the stream storage of a single tenant.
type Store interface {
	Reader
	Writer
	DefinitionRepository

	// CommitToEventLog appends an event to the scope's event log. The event's
	// sequence number is assigned by the store.
	CommitToEventLog(ctx context.Context, scope ScopeID, ev events.CommittedEvent) (events.CommittedEvent, error)
}

// Stores provides the stream storage of each tenant.
type Stores interface {
	ForTenant(tenancy.ID) (Store, error)
}
