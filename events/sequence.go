package events

import (
	"errors"
	"fmt"
)

var (
	// ErrEventLogSequenceIsOutOfOrder indicates that the event log sequence
	// numbers of a sequence of events are not strictly increasing.
	ErrEventLogSequenceIsOutOfOrder = errors.New("event log sequence is out of order")

	// ErrEventSourceMismatch indicates that events applied to a single
	// aggregate root have different event sources.
	ErrEventSourceMismatch = errors.New("event source does not match")

	// ErrAggregateRootMismatch indicates that events applied to a single
	// aggregate root name different aggregate roots.
	ErrAggregateRootMismatch = errors.New("aggregate root does not match")

	// ErrAggregateRootVersionIsOutOfOrder indicates that the aggregate root
	// versions of a sequence of events do not increase by exactly one.
	ErrAggregateRootVersionIsOutOfOrder = errors.New("aggregate root version is out of order")
)

// CommittedEvents is a sequence of committed events ordered by strictly
// increasing event log sequence number.
type CommittedEvents struct {
	events []CommittedEvent
}

// NewCommittedEvents returns a sequence containing the given events.
func NewCommittedEvents(events ...CommittedEvent) (CommittedEvents, error) {
	for i := 1; i < len(events); i++ {
		if err := checkSequence(events[i-1], events[i]); err != nil {
			return CommittedEvents{}, err
		}
	}

	return CommittedEvents{append([]CommittedEvent(nil), events...)}, nil
}

// Len returns the number of events in the sequence.
func (s CommittedEvents) Len() int {
	return len(s.events)
}

// At returns the event at index i.
func (s CommittedEvents) At(i int) CommittedEvent {
	return s.events[i]
}

// All returns a copy of the events in the sequence.
func (s CommittedEvents) All() []CommittedEvent {
	return append([]CommittedEvent(nil), s.events...)
}

// CommittedAggregateEvents is a sequence of events applied to a single
// aggregate root.
type CommittedAggregateEvents struct {
	EventSource   EventSourceID
	AggregateRoot Artifact

	events []CommittedAggregateEvent
}

// NewCommittedAggregateEvents returns a sequence containing the given events,
// all of which must have been applied to the same aggregate root.
//
// The aggregate root version must increase by exactly one with each event,
// starting from the version of the first event.
func NewCommittedAggregateEvents(
	source EventSourceID,
	root Artifact,
	events ...CommittedAggregateEvent,
) (CommittedAggregateEvents, error) {
	for i, e := range events {
		if e.EventSource != source {
			return CommittedAggregateEvents{}, fmt.Errorf(
				"event at index %d: %w: got %q, want %q",
				i,
				ErrEventSourceMismatch,
				e.EventSource,
				source,
			)
		}

		if e.AggregateRoot.ID != root.ID {
			return CommittedAggregateEvents{}, fmt.Errorf(
				"event at index %d: %w: got %s, want %s",
				i,
				ErrAggregateRootMismatch,
				e.AggregateRoot.ID,
				root.ID,
			)
		}

		if i == 0 {
			continue
		}

		prev := events[i-1]

		if err := checkSequence(prev.CommittedEvent, e.CommittedEvent); err != nil {
			return CommittedAggregateEvents{}, err
		}

		if e.AggregateRootVersion != prev.AggregateRootVersion+1 {
			return CommittedAggregateEvents{}, fmt.Errorf(
				"event at index %d: %w: got version %d, want %d",
				i,
				ErrAggregateRootVersionIsOutOfOrder,
				e.AggregateRootVersion,
				prev.AggregateRootVersion+1,
			)
		}
	}

	return CommittedAggregateEvents{
		EventSource:   source,
		AggregateRoot: root,
		events:        append([]CommittedAggregateEvent(nil), events...),
	}, nil
}

// Len returns the number of events in the sequence.
func (s CommittedAggregateEvents) Len() int {
	return len(s.events)
}

// At returns the event at index i.
func (s CommittedAggregateEvents) At(i int) CommittedAggregateEvent {
	return s.events[i]
}

// All returns a copy of the events in the sequence.
func (s CommittedAggregateEvents) All() []CommittedAggregateEvent {
	return append([]CommittedAggregateEvent(nil), s.events...)
}

func checkSequence(prev, next CommittedEvent) error {
	if next.EventLogSequenceNumber <= prev.EventLogSequenceNumber {
		return fmt.Errorf(
			"%w: sequence number %d follows %d",
			ErrEventLogSequenceIsOutOfOrder,
			next.EventLogSequenceNumber,
			prev.EventLogSequenceNumber,
		)
	}
	return nil
}
