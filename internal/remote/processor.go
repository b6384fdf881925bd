package remote

import (
	"context"

	"github.com/evsrc/runtime/internal/filters"
	"github.com/evsrc/runtime/internal/processing"
	"github.com/evsrc/runtime/internal/streams"
)

// Caller sends a request to a connected client and waits for its response.
type Caller interface {
	Call(context.Context, ProcessRequest) (ProcessResponse, error)
}

// Filter is a [filters.Decider] that asks a connected client whether to
// include each event.
type Filter struct {
	Caller Caller
}

var _ filters.Decider = Filter{}

// Filter asks the client whether to include ev.
func (f Filter) Filter(
	ctx context.Context,
	ev streams.Event,
	partition streams.PartitionID,
	retry *processing.RetryAttempt,
) processing.Result {
	return call(ctx, f.Caller, ev, partition, retry)
}

// Handler is a [processing.Processor] that asks a connected client to handle
// each event.
type Handler struct {
	ID     processing.EventProcessorID
	Caller Caller
}

var _ processing.Processor = Handler{}

// Identifier returns h.ID.
func (h Handler) Identifier() processing.EventProcessorID {
	return h.ID
}

// Process asks the client to handle ev.
func (h Handler) Process(
	ctx context.Context,
	ev streams.Event,
	partition streams.PartitionID,
) processing.Result {
	return h.handle(ctx, ev, partition, nil)
}

// ProcessRetry asks the client to handle ev again.
func (h Handler) ProcessRetry(
	ctx context.Context,
	ev streams.Event,
	partition streams.PartitionID,
	reason string,
	retryCount uint32,
) processing.Result {
	return h.handle(
		ctx,
		ev,
		partition,
		&processing.RetryAttempt{
			Reason: reason,
			Count:  retryCount,
		},
	)
}

func (h Handler) handle(
	ctx context.Context,
	ev streams.Event,
	partition streams.PartitionID,
	retry *processing.RetryAttempt,
) processing.Result {
	res := call(ctx, h.Caller, ev, partition, retry)

	// Handlers do not produce streams.
	if res.Succeeded() {
		return processing.Succeeded()
	}

	return res
}

// call sends the request for ev to the client. A failed call is never
// retried; the stream processor stops and the client must connect again.
func call(
	ctx context.Context,
	c Caller,
	ev streams.Event,
	partition streams.PartitionID,
	retry *processing.RetryAttempt,
) processing.Result {
	res, err := c.Call(
		ctx,
		ProcessRequest{
			Event:     ev.Event,
			Position:  ev.Position,
			Partition: partition,
			Retry:     retry,
		},
	)
	if err != nil {
		return processing.Failed("disconnected: " + err.Error())
	}

	return res.Result()
}
