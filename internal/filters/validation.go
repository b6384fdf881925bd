package filters

import (
	"context"
	"fmt"

	"github.com/evsrc/runtime/internal/processing"
	"github.com/evsrc/runtime/internal/streamprocessing"
	"github.com/evsrc/runtime/internal/streams"
	"github.com/evsrc/runtime/tenancy"
)

// ValidationResult is the result of validating a filter.
type ValidationResult struct {
	invalid bool
	reason  string
}

// Valid returns a successful validation result.
func Valid() ValidationResult {
	return ValidationResult{}
}

// Invalid returns a failed validation result.
func Invalid(format string, args ...any) ValidationResult {
	return ValidationResult{
		invalid: true,
		reason:  fmt.Sprintf(format, args...),
	}
}

// Succeeded returns true if the filter is valid.
func (r ValidationResult) Succeeded() bool {
	return !r.invalid
}

// FailureReason returns the reason the filter is invalid.
func (r ValidationResult) FailureReason() string {
	return r.reason
}

func (r ValidationResult) String() string {
	if r.invalid {
		return "invalid: " + r.reason
	}
	return "valid"
}

// Validator checks that a filter being registered produces the same target
// stream as the filter that was previously registered with the same target.
type Validator struct {
	Streams streams.Stores
	States  *streamprocessing.StateRepository
}

// Validate validates a candidate filter definition for a single tenant.
//
// The source events already consumed by the previous filter are replayed
// through decider and the resulting events are compared to those in the
// committed target stream. The error is non-nil only if the streams or
// states can not be read.
func (v *Validator) Validate(
	ctx context.Context,
	tenant tenancy.ID,
	scope streams.ScopeID,
	candidate Definition,
	decider Decider,
) (ValidationResult, error) {
	store, err := v.Streams.ForTenant(tenant)
	if err != nil {
		return ValidationResult{}, err
	}

	persisted, ok, err := GetDefinition(ctx, store, scope, candidate.Target)
	if err != nil || !ok {
		return Valid(), err
	}

	if persisted.Source != candidate.Source {
		return Invalid(
			"filter %s previously read from stream %s, not %s",
			candidate.Target,
			persisted.Source,
			candidate.Source,
		), nil
	}

	if persisted.Partitioned != candidate.Partitioned {
		return Invalid(
			"filter %s can not change from partitioned=%t to partitioned=%t",
			candidate.Target,
			persisted.Partitioned,
			candidate.Partitioned,
		), nil
	}

	if persisted.Public != candidate.Public {
		return Invalid(
			"filter %s can not change from public=%t to public=%t",
			candidate.Target,
			persisted.Public,
			candidate.Public,
		), nil
	}

	state, ok, err := v.States.Get(
		ctx,
		tenant,
		streamprocessing.Key{
			Scope:          scope,
			EventProcessor: processing.EventProcessorID(candidate.Target),
			SourceStream:   candidate.Source,
		},
	)
	if err != nil || !ok || state.Position == streams.Start {
		return Valid(), err
	}

	return v.compare(ctx, store, scope, candidate, decider, state)
}

// included is an event that a filter includes in its target stream.
type included struct {
	Source    streams.Position
	Sequence  uint64
	Partition streams.PartitionID
}

// compare replays the source events before state.Position and compares the
// events the candidate includes to those in the target stream.
func (v *Validator) compare(
	ctx context.Context,
	store streams.Store,
	scope streams.ScopeID,
	candidate Definition,
	decider Decider,
	state streamprocessing.State,
) (ValidationResult, error) {
	source, err := store.FetchRange(
		ctx,
		scope,
		candidate.Source,
		streams.PositionRange{
			From:   streams.Start,
			Length: uint64(state.Position),
		},
	)
	if err != nil {
		return ValidationResult{}, err
	}

	var want []included

	for _, ev := range source {
		// Events of a failing partition have not been written to the target
		// stream yet.
		if fp, ok := state.FailingPartitions[ev.Partition]; ok && ev.Partitioned && ev.Position >= fp.Position {
			continue
		}

		res := decider.Filter(ctx, ev, ev.Partition, nil)
		if !res.Succeeded() {
			return Invalid(
				"filter %s failed to filter the event at position %d of stream %s: %s",
				candidate.Target,
				ev.Position,
				candidate.Source,
				res.FailureReason(),
			), nil
		}

		if !res.IsIncluded() {
			continue
		}

		inc := included{
			Source:   ev.Position,
			Sequence: ev.Event.EventLogSequenceNumber,
		}
		if candidate.Partitioned {
			inc.Partition = res.Partition()
		}

		want = append(want, inc)
	}

	got, err := store.FetchRange(
		ctx,
		scope,
		candidate.Target,
		streams.PositionRange{
			From:   streams.Start,
			Length: uint64(len(want)) + 2,
		},
	)
	if err != nil {
		return ValidationResult{}, err
	}

	// The event at state.Position may have been written to the target stream
	// without the stream processor's position being advanced.
	if len(got) == len(want)+1 {
		written, err := v.writtenButNotCheckpointed(ctx, store, scope, candidate, state, got[len(want)])
		if err != nil {
			return ValidationResult{}, err
		}
		if written {
			got = got[:len(want)]
		}
	}

	for i := 0; i < len(want) || i < len(got); i++ {
		pos := streams.Position(i)

		if i >= len(got) {
			return Invalid(
				"filter %s would include the event at position %d of stream %s at position %d, but the stream ends at position %d",
				candidate.Target,
				want[i].Source,
				candidate.Source,
				pos,
				len(got),
			), nil
		}

		if i >= len(want) {
			return Invalid(
				"filter %s would not include the %s of stream %s",
				candidate.Target,
				got[i],
				candidate.Target,
			), nil
		}

		if got[i].Event.EventLogSequenceNumber != want[i].Sequence {
			return Invalid(
				"filter %s would include event log sequence number %d at position %d, not %d",
				candidate.Target,
				want[i].Sequence,
				pos,
				got[i].Event.EventLogSequenceNumber,
			), nil
		}

		if candidate.Partitioned && got[i].Partition != want[i].Partition {
			return Invalid(
				"filter %s would assign the event at position %d to partition %q, not %q",
				candidate.Target,
				pos,
				want[i].Partition,
				got[i].Partition,
			), nil
		}
	}

	return Valid(), nil
}

// writtenButNotCheckpointed returns true if ev, the last event in the target
// stream, was produced by the source event at state.Position.
func (v *Validator) writtenButNotCheckpointed(
	ctx context.Context,
	store streams.Store,
	scope streams.ScopeID,
	candidate Definition,
	state streamprocessing.State,
	ev streams.Event,
) (bool, error) {
	next, ok, err := store.FetchNext(ctx, scope, candidate.Source, state.Position)
	if err != nil || !ok {
		return false, err
	}

	return next.Event.EventLogSequenceNumber == ev.Event.EventLogSequenceNumber, nil
}
