// Package journalstreams stores event streams in journals.
//
// Each stream of each scope of each tenant is stored in its own journal, one
// record per event. Stream definitions are stored in a key/value keyspace per
// tenant.
package journalstreams

import (
	"context"
	"errors"
	"fmt"

	"github.com/evsrc/runtime/events"
	"github.com/evsrc/runtime/internal/cborx/cborjournal"
	"github.com/evsrc/runtime/internal/streams"
	"github.com/evsrc/runtime/persistence/journal"
	"github.com/evsrc/runtime/persistence/kv"
	"github.com/evsrc/runtime/tenancy"
)

// Stores is an implementation of [streams.Stores] that stores streams in
// journals.
type Stores struct {
	Journals  journal.Store
	Keyspaces kv.Store

	// AfterWrite, if non-nil, is called after an event is written to any
	// stream.
	AfterWrite func(tenancy.ID, streams.ScopeID, streams.ID)
}

// ForTenant returns the stream store for the given tenant.
func (s *Stores) ForTenant(tenant tenancy.ID) (streams.Store, error) {
	return &store{s, tenant}, nil
}

// record is the journal record of a single event.
type record struct {
	Event     events.CommittedEvent
	Partition streams.PartitionID
}

type store struct {
	stores *Stores
	tenant tenancy.ID
}

func (s *store) open(
	ctx context.Context,
	scope streams.ScopeID,
	stream streams.ID,
) (journal.Journal, error) {
	j, err := s.stores.Journals.Open(
		ctx,
		"streams",
		s.tenant.String(),
		scope.String(),
		stream.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to open stream %s: %w", stream, err)
	}
	return j, nil
}

func (s *store) FetchNext(
	ctx context.Context,
	scope streams.ScopeID,
	stream streams.ID,
	pos streams.Position,
) (streams.Event, bool, error) {
	j, err := s.open(ctx, scope, stream)
	if err != nil {
		return streams.Event{}, false, err
	}
	defer j.Close()

	rec, ok, err := cborjournal.Get[record](ctx, j, journal.Position(pos))
	if !ok || err != nil {
		return streams.Event{}, false, err
	}

	return rec.asEvent(pos), true, nil
}

func (s *store) FetchRange(
	ctx context.Context,
	scope streams.ScopeID,
	stream streams.ID,
	r streams.PositionRange,
) ([]streams.Event, error) {
	if r.Length == 0 {
		return nil, nil
	}

	j, err := s.open(ctx, scope, stream)
	if err != nil {
		return nil, err
	}
	defer j.Close()

	var result []streams.Event

	if err := cborjournal.Range(
		ctx,
		j,
		journal.Position(r.From),
		func(
			ctx context.Context,
			pos journal.Position,
			rec record,
		) (bool, error) {
			result = append(result, rec.asEvent(streams.Position(pos)))
			return streams.Position(pos)+1 < r.End(), nil
		},
	); err != nil {
		return nil, err
	}

	if stream == streams.EventLog {
		if err := checkEventLog(result); err != nil {
			return nil, fmt.Errorf("event log of scope %s is corrupt: %w", scope, err)
		}
	}

	return result, nil
}

// checkEventLog returns an error if the sequence numbers of events read from
// the event log are not strictly increasing.
func checkEventLog(batch []streams.Event) error {
	committed := make([]events.CommittedEvent, len(batch))
	for i, ev := range batch {
		committed[i] = ev.Event
	}

	_, err := events.NewCommittedEvents(committed...)
	return err
}

func (s *store) Write(
	ctx context.Context,
	scope streams.ScopeID,
	stream streams.ID,
	ev events.CommittedEvent,
	partition streams.PartitionID,
) error {
	if stream == streams.EventLog {
		return errors.New("events can not be written directly to the event log")
	}

	j, err := s.open(ctx, scope, stream)
	if err != nil {
		return err
	}
	defer j.Close()

	for {
		pos, last, ok, err := cborjournal.LastRecord[record](ctx, j)
		if err != nil {
			return err
		}

		end := journal.Position(0)
		if ok {
			if last.Event.EventLogSequenceNumber == ev.EventLogSequenceNumber {
				// The event was already written by a prior attempt.
				return nil
			}
			end = pos + 1
		}

		err = cborjournal.Append(ctx, j, end, record{ev, partition})
		if errors.Is(err, journal.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("unable to write to stream %s: %w", stream, err)
		}

		s.afterWrite(scope, stream)
		return nil
	}
}

func (s *store) CommitToEventLog(
	ctx context.Context,
	scope streams.ScopeID,
	ev events.CommittedEvent,
) (events.CommittedEvent, error) {
	j, err := s.open(ctx, scope, streams.EventLog)
	if err != nil {
		return events.CommittedEvent{}, err
	}
	defer j.Close()

	for {
		_, end, err := j.Bounds(ctx)
		if err != nil {
			return events.CommittedEvent{}, err
		}

		ev.EventLogSequenceNumber = uint64(end)

		err = cborjournal.Append(ctx, j, end, record{Event: ev})
		if errors.Is(err, journal.ErrConflict) {
			continue
		}
		if err != nil {
			return events.CommittedEvent{}, fmt.Errorf("unable to commit to event log: %w", err)
		}

		s.afterWrite(scope, streams.EventLog)
		return ev, nil
	}
}

func (s *store) afterWrite(scope streams.ScopeID, stream streams.ID) {
	if s.stores.AfterWrite != nil {
		s.stores.AfterWrite(s.tenant, scope, stream)
	}
}

func (r record) asEvent(pos streams.Position) streams.Event {
	return streams.Event{
		Event:       r.Event,
		Position:    pos,
		Partition:   r.Partition,
		Partitioned: r.Partition != streams.NoPartition,
	}
}
