package events_test

import (
	"errors"
	"testing"

	. "github.com/evsrc/runtime/events"
	"github.com/evsrc/runtime/internal/test"
	"github.com/google/uuid"
)

func TestNewCommittedEvents(t *testing.T) {
	t.Parallel()

	t.Run("it accepts strictly increasing sequence numbers", func(t *testing.T) {
		t.Parallel()

		seq, err := NewCommittedEvents(
			CommittedEvent{EventLogSequenceNumber: 0},
			CommittedEvent{EventLogSequenceNumber: 3},
			CommittedEvent{EventLogSequenceNumber: 4},
		)
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(t, "unexpected length", seq.Len(), 3)
		test.Expect(t, "unexpected last event", seq.At(2).EventLogSequenceNumber, uint64(4))
	})

	t.Run("it rejects out-of-order sequence numbers", func(t *testing.T) {
		t.Parallel()

		_, err := NewCommittedEvents(
			CommittedEvent{EventLogSequenceNumber: 2},
			CommittedEvent{EventLogSequenceNumber: 1},
		)
		if !errors.Is(err, ErrEventLogSequenceIsOutOfOrder) {
			t.Fatalf("unexpected error: got %v, want %v", err, ErrEventLogSequenceIsOutOfOrder)
		}
	})

	t.Run("it rejects duplicate sequence numbers", func(t *testing.T) {
		t.Parallel()

		_, err := NewCommittedEvents(
			CommittedEvent{EventLogSequenceNumber: 1},
			CommittedEvent{EventLogSequenceNumber: 1},
		)
		if !errors.Is(err, ErrEventLogSequenceIsOutOfOrder) {
			t.Fatalf("unexpected error: got %v, want %v", err, ErrEventLogSequenceIsOutOfOrder)
		}
	})

	t.Run("it does not share the caller's slice", func(t *testing.T) {
		t.Parallel()

		in := []CommittedEvent{{EventLogSequenceNumber: 1}}
		seq, err := NewCommittedEvents(in...)
		if err != nil {
			t.Fatal(err)
		}

		in[0].EventLogSequenceNumber = 100
		test.Expect(t, "unexpected sequence number", seq.At(0).EventLogSequenceNumber, uint64(1))
	})
}

func TestNewCommittedAggregateEvents(t *testing.T) {
	t.Parallel()

	root := Artifact{ID: uuid.New()}
	event := func(seq, version uint64) CommittedAggregateEvent {
		return CommittedAggregateEvent{
			CommittedEvent: CommittedEvent{
				EventLogSequenceNumber: seq,
				EventSource:            "<source>",
			},
			AggregateRoot:        root,
			AggregateRootVersion: version,
		}
	}

	t.Run("it accepts consecutive versions starting from the first event", func(t *testing.T) {
		t.Parallel()

		seq, err := NewCommittedAggregateEvents(
			"<source>",
			root,
			event(10, 5),
			event(11, 6),
			event(15, 7),
		)
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(t, "unexpected length", seq.Len(), 3)
	})

	cases := []struct {
		Desc   string
		Events []CommittedAggregateEvent
		Want   error
	}{
		{
			"it rejects events from a different event source",
			[]CommittedAggregateEvent{
				event(1, 1),
				func() CommittedAggregateEvent {
					e := event(2, 2)
					e.EventSource = "<other>"
					return e
				}(),
			},
			ErrEventSourceMismatch,
		},
		{
			"it rejects events applied to a different aggregate root",
			[]CommittedAggregateEvent{
				func() CommittedAggregateEvent {
					e := event(1, 1)
					e.AggregateRoot = Artifact{ID: uuid.New()}
					return e
				}(),
			},
			ErrAggregateRootMismatch,
		},
		{
			"it rejects versions that skip",
			[]CommittedAggregateEvent{event(1, 1), event(2, 3)},
			ErrAggregateRootVersionIsOutOfOrder,
		},
		{
			"it rejects versions that repeat",
			[]CommittedAggregateEvent{event(1, 1), event(2, 1)},
			ErrAggregateRootVersionIsOutOfOrder,
		},
		{
			"it rejects out-of-order sequence numbers",
			[]CommittedAggregateEvent{event(2, 1), event(1, 2)},
			ErrEventLogSequenceIsOutOfOrder,
		},
	}

	for _, c := range cases {
		c := c

		t.Run(c.Desc, func(t *testing.T) {
			t.Parallel()

			_, err := NewCommittedAggregateEvents("<source>", root, c.Events...)
			if !errors.Is(err, c.Want) {
				t.Fatalf("unexpected error: got %v, want %v", err, c.Want)
			}
		})
	}
}
