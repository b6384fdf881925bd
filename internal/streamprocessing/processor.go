package streamprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dogmatiq/linger"
	"github.com/evsrc/runtime/internal/fsm"
	"github.com/evsrc/runtime/internal/processing"
	"github.com/evsrc/runtime/internal/signaling"
	"github.com/evsrc/runtime/internal/streams"
	"github.com/evsrc/runtime/internal/telemetry"
	"github.com/evsrc/runtime/tenancy"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// DefaultIdleInterval is the default amount of time a stream processor waits
// before checking for new events when it has reached the end of its source
// stream.
const DefaultIdleInterval = time.Second

const pkg = "github.com/evsrc/runtime/internal/streamprocessing"

// StreamProcessor processes the events of one source stream on behalf of one
// event processor, for a single tenant.
//
// Events are processed one at a time, in order. The position advances only
// after the processor reports success.
type StreamProcessor struct {
	Tenant    tenancy.ID
	Key       Key
	Processor processing.Processor
	Stream    streams.Reader
	States    *StateRepository

	// IdleInterval is the amount of time to wait before checking for new
	// events when the end of the stream is reached. If it is non-positive,
	// [DefaultIdleInterval] is used.
	IdleInterval time.Duration

	Telemetry *telemetry.Provider

	wake      signaling.Event
	state     State
	telemetry *telemetry.Recorder
	logger    *slog.Logger
	processed telemetry.Instrument[int64]
	retried   telemetry.Instrument[int64]
	failed    telemetry.Instrument[int64]
}

// Notify wakes the processor if it is waiting for new events.
func (p *StreamProcessor) Notify() {
	p.wake.Signal()
}

// Run processes events until ctx is canceled, the processor fails
// permanently, or an error occurs.
//
// A permanent processing failure persists the [Stopping] phase and returns
// nil. A failure to read the source stream or to persist the state returns an
// error without any further state being persisted.
func (p *StreamProcessor) Run(ctx context.Context) error {
	p.telemetry = p.Telemetry.Recorder(
		pkg,
		"stream_processor",
		telemetry.UUID("tenant", p.Tenant),
		telemetry.UUID("scope", p.Key.Scope),
		telemetry.UUID("event_processor", p.Key.EventProcessor),
		telemetry.UUID("source_stream", p.Key.SourceStream),
	)
	p.logger = p.telemetry.Logger()
	p.processed = p.telemetry.Counter("events.processed", "{event}", "The number of events processed successfully.")
	p.retried = p.telemetry.Counter("events.retried", "{event}", "The number of processing attempts that requested a retry.")
	p.failed = p.telemetry.Counter("events.failed", "{event}", "The number of processing attempts that failed permanently.")

	p.logger.DebugContext(ctx, "stream processor started")
	defer func() {
		p.logger.DebugContext(
			ctx,
			"stream processor stopped",
			slog.String("phase", p.state.Phase.String()),
			slog.Uint64("position", uint64(p.state.Position)),
		)
	}()

	state, ok, err := p.States.Get(ctx, p.Tenant, p.Key)
	if err != nil {
		return err
	}

	if !ok {
		state = NewState()
		if err := p.States.Set(ctx, p.Tenant, p.Key, state); err != nil {
			return err
		}
	}

	p.state = state

	return fsm.Start(ctx, p.startState)
}

// startState resumes processing from the persisted state.
func (p *StreamProcessor) startState(ctx context.Context) fsm.Action {
	switch p.state.Phase {
	case Retrying:
		return fsm.EnterState(p.retryingState)
	case Processing:
		return fsm.EnterState(p.processingState)
	}

	if p.state.Phase == Stopping {
		p.logger.InfoContext(
			ctx,
			"resuming stream processor that previously failed",
			slog.String("reason", p.state.FailureReason),
			slog.Uint64("position", uint64(p.state.Position)),
		)
	}

	next := p.state
	next.Phase = Processing
	next.FailureReason = ""
	next.ProcessingAttempts = 0
	next.RetryTime = time.Time{}

	return p.transition(ctx, next, p.processingState)
}

// processingState processes the event at the current position.
func (p *StreamProcessor) processingState(ctx context.Context) fsm.Action {
	if _, _, ok := p.nextPartitionToRetry(time.Now()); ok {
		return fsm.EnterState(p.catchUpState)
	}

	ev, ok, err := p.Stream.FetchNext(ctx, p.Key.Scope, p.Key.SourceStream, p.state.Position)
	if err != nil {
		return p.fail(ctx, err)
	}

	if !ok {
		next := p.state
		next.Phase = Waiting
		return p.transition(ctx, next, p.waitingState)
	}

	if ev.Partitioned && p.state.IsFailing(ev.Partition) {
		next := p.state
		next.Position = ev.Position.Next()
		return p.transition(ctx, next, p.processingState)
	}

	ctx, span := p.telemetry.StartSpan(
		ctx,
		"process",
		telemetry.Int("position", ev.Position),
		telemetry.If(ev.Partitioned, telemetry.String("partition", ev.Partition)),
	)
	defer span.End()

	res := p.Processor.Process(ctx, ev, ev.Partition)
	return p.handleResult(ctx, span, ev, res)
}

// waitingState waits for new events to be written to the source stream.
func (p *StreamProcessor) waitingState(ctx context.Context) fsm.Action {
	timeout := time.NewTimer(p.idleInterval())
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		return fsm.Stop()
	case <-p.wake.Signaled():
	case <-timeout.C:
	}

	if _, _, ok := p.nextPartitionToRetry(time.Now()); !ok {
		_, ok, err := p.Stream.FetchNext(ctx, p.Key.Scope, p.Key.SourceStream, p.state.Position)
		if err != nil {
			return p.fail(ctx, err)
		}
		if !ok {
			return fsm.StayInCurrentState()
		}
	}

	next := p.state
	next.Phase = Processing
	return p.transition(ctx, next, p.processingState)
}

// retryingState retries the event at the current position once the retry
// time has been reached.
func (p *StreamProcessor) retryingState(ctx context.Context) fsm.Action {
	if err := linger.SleepUntil(ctx, p.state.RetryTime); err != nil {
		return fsm.Stop()
	}

	ev, ok, err := p.Stream.FetchNext(ctx, p.Key.Scope, p.Key.SourceStream, p.state.Position)
	if err != nil {
		return p.fail(ctx, err)
	}
	if !ok {
		return p.fail(
			ctx,
			fmt.Errorf("event at position %d of the source stream is not available", p.state.Position),
		)
	}

	ctx, span := p.telemetry.StartSpan(
		ctx,
		"retry",
		telemetry.Int("position", ev.Position),
		telemetry.Int("attempt", p.state.ProcessingAttempts),
	)
	defer span.End()

	res := p.Processor.ProcessRetry(
		ctx,
		ev,
		ev.Partition,
		p.state.FailureReason,
		p.state.ProcessingAttempts,
	)
	return p.handleResult(ctx, span, ev, res)
}

// handleResult applies the result of processing the event at the current
// position.
func (p *StreamProcessor) handleResult(
	ctx context.Context,
	span *telemetry.Span,
	ev streams.Event,
	res processing.Result,
) fsm.Action {
	if ctx.Err() != nil {
		return fsm.Stop()
	}

	next := p.state

	switch {
	case res.Succeeded():
		p.processed(ctx, 1)
		span.Debug("event processed")

		next.Phase = Processing
		next.Position = ev.Position.Next()
		next.FailureReason = ""
		next.ProcessingAttempts = 0
		next.RetryTime = time.Time{}

		return p.transition(ctx, next, p.processingState)

	case res.Retry():
		p.retried(ctx, 1)
		span.Warn(
			"event processing will be retried",
			telemetry.String("reason", res.FailureReason()),
			telemetry.Duration("retry_timeout", res.RetryTimeout()),
		)

		retryTime := time.Now().Add(res.RetryTimeout())

		if ev.Partitioned {
			next, err := p.state.AddFailingPartition(
				ev.Partition,
				FailingPartition{
					Position:           ev.Position,
					RetryTime:          retryTime,
					Reason:             res.FailureReason(),
					ProcessingAttempts: 1,
				},
			)
			if err != nil {
				return p.fail(ctx, err)
			}

			next.Phase = Processing
			next.Position = ev.Position.Next()

			return p.transition(ctx, next, p.processingState)
		}

		next.Phase = Retrying
		next.FailureReason = res.FailureReason()
		next.ProcessingAttempts++
		next.RetryTime = retryTime

		return p.transition(ctx, next, p.retryingState)

	default:
		p.failed(ctx, 1)
		span.Error(
			"event processing failed permanently",
			fmt.Errorf("%s", res.FailureReason()),
		)

		next.Phase = Stopping
		next.FailureReason = res.FailureReason()
		next.ProcessingAttempts++

		return p.transition(ctx, next, p.stoppingState)
	}
}

// catchUpState reprocesses the events of the failing partition that is next
// due to be retried, from its failing position up to the current position.
func (p *StreamProcessor) catchUpState(ctx context.Context) fsm.Action {
	id, fp, ok := p.nextPartitionToRetry(time.Now())
	if !ok {
		return fsm.EnterState(p.processingState)
	}

	evs, err := p.Stream.FetchRange(
		ctx,
		p.Key.Scope,
		p.Key.SourceStream,
		streams.PositionRange{
			From:   fp.Position,
			Length: uint64(p.state.Position - fp.Position),
		},
	)
	if err != nil {
		return p.fail(ctx, err)
	}

	for _, ev := range evs {
		if ev.Partition != id {
			continue
		}

		act, done := p.catchUp(ctx, id, &fp, ev)
		if done {
			return act
		}
	}

	next, err := p.state.RemoveFailingPartition(id)
	if err != nil {
		return p.fail(ctx, err)
	}

	p.logger.InfoContext(
		ctx,
		"failing partition has caught up",
		slog.String("partition", string(id)),
	)

	return p.transition(ctx, next, p.catchUpState)
}

// catchUp reprocesses a single event of a failing partition. done is true if
// catching up must not continue, in which case act is the action to take.
func (p *StreamProcessor) catchUp(
	ctx context.Context,
	id streams.PartitionID,
	fp *FailingPartition,
	ev streams.Event,
) (act fsm.Action, done bool) {
	ctx, span := p.telemetry.StartSpan(
		ctx,
		"catch_up",
		telemetry.Int("position", ev.Position),
		telemetry.String("partition", id),
	)
	defer span.End()

	var res processing.Result
	if fp.ProcessingAttempts == 0 {
		res = p.Processor.Process(ctx, ev, id)
	} else {
		res = p.Processor.ProcessRetry(ctx, ev, id, fp.Reason, fp.ProcessingAttempts)
	}

	if ctx.Err() != nil {
		return fsm.Stop(), true
	}

	switch {
	case res.Succeeded():
		p.processed(ctx, 1)
		fp.Position = ev.Position.Next()
		fp.Reason = ""
		fp.ProcessingAttempts = 0

	case res.Retry():
		p.retried(ctx, 1)
		span.Warn(
			"failing partition will be retried",
			telemetry.String("reason", res.FailureReason()),
			telemetry.Duration("retry_timeout", res.RetryTimeout()),
		)

		fp.Position = ev.Position
		fp.RetryTime = time.Now().Add(res.RetryTimeout())
		fp.Reason = res.FailureReason()
		fp.ProcessingAttempts++

		next, err := p.state.UpdateFailingPartition(id, *fp)
		if err != nil {
			return p.fail(ctx, err), true
		}
		return p.transition(ctx, next, p.processingState), true

	default:
		p.failed(ctx, 1)
		span.Error(
			"failing partition failed permanently",
			fmt.Errorf("%s", res.FailureReason()),
		)

		next := p.state
		next.Phase = Stopping
		next.FailureReason = res.FailureReason()
		return p.transition(ctx, next, p.stoppingState), true
	}

	next, err := p.state.UpdateFailingPartition(id, *fp)
	if err != nil {
		return p.fail(ctx, err), true
	}
	if err := p.persist(ctx, next); err != nil {
		return p.fail(ctx, err), true
	}

	return fsm.Action{}, false
}

// stoppingState stops the processor after a permanent failure.
func (p *StreamProcessor) stoppingState(ctx context.Context) fsm.Action {
	p.logger.ErrorContext(
		ctx,
		"stream processor stopped after a permanent failure",
		slog.String("reason", p.state.FailureReason),
		slog.Uint64("position", uint64(p.state.Position)),
	)
	return fsm.Stop()
}

// transition persists next and then makes it the current state before
// entering the given state.
func (p *StreamProcessor) transition(
	ctx context.Context,
	next State,
	then fsm.State,
) fsm.Action {
	if err := p.persist(ctx, next); err != nil {
		return p.fail(ctx, err)
	}
	return fsm.EnterState(then)
}

// persist persists next and then makes it the current state.
func (p *StreamProcessor) persist(ctx context.Context, next State) error {
	if err := p.States.Set(ctx, p.Tenant, p.Key, next); err != nil {
		return err
	}

	if next.Phase != p.state.Phase {
		p.logger.DebugContext(
			ctx,
			"stream processor state changed",
			slog.String("from", p.state.Phase.String()),
			slog.String("to", next.Phase.String()),
			slog.Uint64("position", uint64(next.Position)),
		)
	}

	p.state = next
	return nil
}

// fail stops the processor because of an infrastructure error. No further
// state is persisted.
func (p *StreamProcessor) fail(ctx context.Context, err error) fsm.Action {
	if ctx.Err() != nil {
		return fsm.Stop()
	}

	p.state.Phase = Stopping
	p.logger.ErrorContext(
		ctx,
		"stream processor stopped due to an error",
		slog.String("error", err.Error()),
		slog.Uint64("position", uint64(p.state.Position)),
	)

	return fsm.Fail(err)
}

// nextPartitionToRetry returns the failing partition with the earliest retry
// time, if that time has been reached.
func (p *StreamProcessor) nextPartitionToRetry(
	now time.Time,
) (streams.PartitionID, FailingPartition, bool) {
	ids := maps.Keys(p.state.FailingPartitions)
	slices.Sort(ids)

	var (
		id    streams.PartitionID
		fp    FailingPartition
		found bool
	)

	for _, candidate := range ids {
		c := p.state.FailingPartitions[candidate]
		if c.RetryTime.After(now) {
			continue
		}
		if !found || c.RetryTime.Before(fp.RetryTime) {
			id, fp, found = candidate, c, true
		}
	}

	return id, fp, found
}

func (p *StreamProcessor) idleInterval() time.Duration {
	if p.IdleInterval > 0 {
		return p.IdleInterval
	}
	return DefaultIdleInterval
}
