package filters_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/evsrc/runtime/events"
	. "github.com/evsrc/runtime/internal/filters"
	"github.com/evsrc/runtime/internal/processing"
	"github.com/evsrc/runtime/internal/streams"
	"github.com/evsrc/runtime/internal/streams/journalstreams"
	"github.com/evsrc/runtime/internal/test"
	"github.com/evsrc/runtime/persistence/driver/memory"
	"github.com/evsrc/runtime/persistence/journal"
	"github.com/evsrc/runtime/tenancy"
	"github.com/google/uuid"
)

func TestProcessor(t *testing.T) {
	t.Parallel()

	setup := func(t test.TestingT, result processing.Result) (deps struct {
		Journals  *memory.JournalStore
		Store     streams.Store
		Tenant    tenancy.ID
		Processor *Processor
	}) {
		deps.Journals = &memory.JournalStore{}
		deps.Tenant = tenancy.ID(uuid.New())

		stores := &journalstreams.Stores{
			Journals:  deps.Journals,
			Keyspaces: &memory.KeyValueStore{},
		}

		var err error
		deps.Store, err = stores.ForTenant(deps.Tenant)
		if err != nil {
			t.Fatal(err)
		}

		deps.Processor = &Processor{
			Scope: streams.DefaultScope,
			Definition: Definition{
				Source:      streams.EventLog,
				Target:      streams.ID(uuid.New()),
				Partitioned: true,
				Kind:        RemoteFilter,
			},
			Decider: DeciderFunc(func(
				context.Context,
				streams.Event,
				streams.PartitionID,
				*processing.RetryAttempt,
			) processing.Result {
				return result
			}),
			Writer: deps.Store,
		}

		return deps
	}

	event := streams.Event{
		Event: events.CommittedEvent{
			EventLogSequenceNumber: 7,
			Type:                   events.Artifact{ID: uuid.New()},
		},
		Position: 7,
	}

	t.Run("it is identified by its target stream", func(t *testing.T) {
		t.Parallel()

		deps := setup(t, processing.Excluded())

		test.Expect(
			t,
			"unexpected identifier",
			deps.Processor.Identifier(),
			processing.EventProcessorID(deps.Processor.Definition.Target),
		)
	})

	t.Run("it writes included events to the target stream", func(t *testing.T) {
		t.Parallel()

		ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
		deps := setup(t, processing.Included("<partition>"))

		res := deps.Processor.Process(ctx, event, streams.NoPartition)
		test.Expect(t, "unexpected result", res.String(), `included in partition "<partition>"`)

		got, ok, err := deps.Store.FetchNext(ctx, streams.DefaultScope, deps.Processor.Definition.Target, streams.Start)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("expected event to be written")
		}

		test.Expect(
			t,
			"unexpected event",
			got,
			streams.Event{
				Event:       event.Event,
				Position:    streams.Start,
				Partition:   "<partition>",
				Partitioned: true,
			},
		)
	})

	t.Run("it does not partition events when the filter is unpartitioned", func(t *testing.T) {
		t.Parallel()

		ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
		deps := setup(t, processing.Included("<partition>"))
		deps.Processor.Definition.Partitioned = false

		deps.Processor.Process(ctx, event, streams.NoPartition)

		got, _, err := deps.Store.FetchNext(ctx, streams.DefaultScope, deps.Processor.Definition.Target, streams.Start)
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(t, "unexpected partition", got.Partition, streams.NoPartition)
		test.Expect(t, "unexpected partitioning", got.Partitioned, false)
	})

	t.Run("it does not write excluded events", func(t *testing.T) {
		t.Parallel()

		ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
		deps := setup(t, processing.Excluded())

		res := deps.Processor.Process(ctx, event, streams.NoPartition)
		test.Expect(t, "unexpected result", res.Succeeded(), true)

		_, ok, err := deps.Store.FetchNext(ctx, streams.DefaultScope, deps.Processor.Definition.Target, streams.Start)
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(t, "unexpected event", ok, false)
	})

	t.Run("it returns the decider's result when it does not succeed", func(t *testing.T) {
		t.Parallel()

		ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
		deps := setup(t, processing.Retry("<reason>", time.Minute))

		res := deps.Processor.ProcessRetry(ctx, event, streams.NoPartition, "<prior reason>", 1)
		test.Expect(t, "unexpected result", res.String(), "retry in 1m0s: <reason>")
	})

	t.Run("it requests a retry when the event can not be written", func(t *testing.T) {
		t.Parallel()

		ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
		deps := setup(t, processing.Included("<partition>"))

		memory.FailBeforeJournalAppend(
			deps.Journals,
			func(journal.Position, []byte) bool { return true },
			"streams",
			deps.Tenant.String(),
			streams.DefaultScope.String(),
			deps.Processor.Definition.Target.String(),
		)

		res := deps.Processor.Process(ctx, event, streams.NoPartition)
		if !res.Retry() {
			t.Fatalf("expected a retry, got %s", res)
		}

		test.Expect(t, "unexpected retry timeout", res.RetryTimeout(), DefaultWriteRetryTimeout)

		if !strings.Contains(res.FailureReason(), memory.ErrInjected.Error()) {
			t.Fatalf("unexpected failure reason: %s", res.FailureReason())
		}

		res = deps.Processor.ProcessRetry(ctx, event, streams.NoPartition, res.FailureReason(), 1)
		test.Expect(t, "unexpected result", res.Succeeded(), true)
	})
}

func TestValidateTarget(t *testing.T) {
	t.Parallel()

	source := streams.ID(uuid.New())

	cases := []struct {
		Desc       string
		Definition Definition
		Valid      bool
	}{
		{
			"it accepts a derived target stream",
			Definition{Source: source, Target: streams.ID(uuid.New())},
			true,
		},
		{
			"it rejects the event log as the target stream",
			Definition{Source: source, Target: streams.EventLog},
			false,
		},
		{
			"it rejects the source stream as the target stream",
			Definition{Source: source, Target: source},
			false,
		},
	}

	for _, c := range cases {
		c := c

		t.Run(c.Desc, func(t *testing.T) {
			t.Parallel()

			res := ValidateTarget(c.Definition)
			test.Expect(t, "unexpected result", res.Succeeded(), c.Valid)
		})
	}
}
