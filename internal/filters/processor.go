package filters

import (
	"context"
	"fmt"
	"time"

	"github.com/evsrc/runtime/internal/processing"
	"github.com/evsrc/runtime/internal/streams"
)

// DefaultWriteRetryTimeout is the amount of time to wait before retrying an
// event that could not be written to a filter's target stream.
const DefaultWriteRetryTimeout = 5 * time.Second

// Processor is a [processing.Processor] that writes the events included by a
// [Decider] to the filter's target stream.
type Processor struct {
	Scope      streams.ScopeID
	Definition Definition
	Decider    Decider
	Writer     streams.Writer
}

var _ processing.Processor = (*Processor)(nil)

// Identifier returns the ID of the filter, which is the ID of its target
// stream.
func (p *Processor) Identifier() processing.EventProcessorID {
	return processing.EventProcessorID(p.Definition.Target)
}

// Process filters an event for the first time.
func (p *Processor) Process(
	ctx context.Context,
	ev streams.Event,
	partition streams.PartitionID,
) processing.Result {
	res := p.Decider.Filter(ctx, ev, partition, nil)
	return p.write(ctx, ev, res)
}

// ProcessRetry filters an event that previously failed.
func (p *Processor) ProcessRetry(
	ctx context.Context,
	ev streams.Event,
	partition streams.PartitionID,
	reason string,
	retryCount uint32,
) processing.Result {
	res := p.Decider.Filter(
		ctx,
		ev,
		partition,
		&processing.RetryAttempt{
			Reason: reason,
			Count:  retryCount,
		},
	)
	return p.write(ctx, ev, res)
}

// write appends ev to the target stream if res includes it. Success is not
// reported until the event has been written.
func (p *Processor) write(
	ctx context.Context,
	ev streams.Event,
	res processing.Result,
) processing.Result {
	if !res.Succeeded() || !res.IsIncluded() {
		return res
	}

	partition := res.Partition()
	if !p.Definition.Partitioned {
		partition = streams.NoPartition
	}

	if err := p.Writer.Write(
		ctx,
		p.Scope,
		p.Definition.Target,
		ev.Event,
		partition,
	); err != nil {
		return processing.Retry(
			fmt.Sprintf("unable to write event to stream %s: %s", p.Definition.Target, err),
			DefaultWriteRetryTimeout,
		)
	}

	return res
}
