package processing

import (
	"context"

	"github.com/evsrc/runtime/internal/streams"
	"github.com/google/uuid"
)

// EventProcessorID uniquely identifies an event processor.
type EventProcessorID uuid.UUID

func (id EventProcessorID) String() string {
	return uuid.UUID(id).String()
}

// Kind is the kind of an event processor.
type Kind int

const (
	// FilterKind is the kind of processors that include events in a derived
	// stream.
	FilterKind Kind = iota

	// HandlerKind is the kind of processors that react to events without
	// producing a derived stream.
	HandlerKind
)

func (k Kind) String() string {
	if k == FilterKind {
		return "filter"
	}
	return "handler"
}

// RetryAttempt describes a prior failed attempt to process an event.
type RetryAttempt struct {
	Reason string
	Count  uint32
}

// Processor is an event processor.
type Processor interface {
	// Identifier returns the ID of the processor.
	Identifier() EventProcessorID

	// Process processes an event for the first time.
	Process(ctx context.Context, ev streams.Event, partition streams.PartitionID) Result

	// ProcessRetry processes an event that previously failed with the given
	// reason. retryCount is the number of prior attempts.
	ProcessRetry(
		ctx context.Context,
		ev streams.Event,
		partition streams.PartitionID,
		reason string,
		retryCount uint32,
	) Result
}

// ProcessorFunc adapts a function to the [Processor] interface.
//
// retry is nil when the event is being processed for the first time.
type ProcessorFunc struct {
	ID EventProcessorID
	Fn func(
		ctx context.Context,
		ev streams.Event,
		partition streams.PartitionID,
		retry *RetryAttempt,
	) Result
}

// Identifier returns p.ID.
func (p ProcessorFunc) Identifier() EventProcessorID {
	return p.ID
}

// Process calls p.Fn with a nil retry attempt.
func (p ProcessorFunc) Process(
	ctx context.Context,
	ev streams.Event,
	partition streams.PartitionID,
) Result {
	return p.Fn(ctx, ev, partition, nil)
}

// ProcessRetry calls p.Fn with the details of the prior attempt.
func (p ProcessorFunc) ProcessRetry(
	ctx context.Context,
	ev streams.Event,
	partition streams.PartitionID,
	reason string,
	retryCount uint32,
) Result {
	return p.Fn(
		ctx,
		ev,
		partition,
		&RetryAttempt{
			Reason: reason,
			Count:  retryCount,
		},
	)
}
