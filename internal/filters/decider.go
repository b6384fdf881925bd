package filters

import (
	"context"

	"github.com/evsrc/runtime/events"
	"github.com/evsrc/runtime/internal/processing"
	"github.com/evsrc/runtime/internal/streams"
)

// Decider decides whether an event is included in a filter's target stream.
//
// A successful result is either [processing.Included] or
// [processing.Excluded].
type Decider interface {
	Filter(
		ctx context.Context,
		ev streams.Event,
		partition streams.PartitionID,
		retry *processing.RetryAttempt,
	) processing.Result
}

// DeciderFunc adapts a function to the [Decider] interface.
type DeciderFunc func(
	ctx context.Context,
	ev streams.Event,
	partition streams.PartitionID,
	retry *processing.RetryAttempt,
) processing.Result

// Filter returns fn(ctx, ev, partition, retry).
func (fn DeciderFunc) Filter(
	ctx context.Context,
	ev streams.Event,
	partition streams.PartitionID,
	retry *processing.RetryAttempt,
) processing.Result {
	return fn(ctx, ev, partition, retry)
}

// TypeDecider includes events whose type is one of Types.
//
// Types are matched by ID; the generation is ignored. When Partitioned is
// true each included event is assigned to a partition named after its event
// source.
type TypeDecider struct {
	Types       []events.Artifact
	Partitioned bool
}

// NewTypeDecider returns the decider of a [TypeFilter] definition.
func NewTypeDecider(def Definition) TypeDecider {
	return TypeDecider{
		Types:       def.Types,
		Partitioned: def.Partitioned,
	}
}

// Filter includes ev if its type is one of d.Types.
func (d TypeDecider) Filter(
	_ context.Context,
	ev streams.Event,
	_ streams.PartitionID,
	_ *processing.RetryAttempt,
) processing.Result {
	for _, t := range d.Types {
		if t.ID != ev.Event.Type.ID {
			continue
		}

		if d.Partitioned {
			return processing.Included(streams.PartitionID(ev.Event.EventSource))
		}

		return processing.Included(streams.NoPartition)
	}

	return processing.Excluded()
}
