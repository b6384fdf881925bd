package remote_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/evsrc/runtime/events"
	"github.com/evsrc/runtime/internal/processing"
	. "github.com/evsrc/runtime/internal/remote"
	"github.com/evsrc/runtime/internal/reversecall"
	"github.com/evsrc/runtime/internal/streamprocessing"
	"github.com/evsrc/runtime/internal/streams"
	"github.com/evsrc/runtime/internal/streams/journalstreams"
	"github.com/evsrc/runtime/internal/test"
	"github.com/evsrc/runtime/persistence/driver/memory"
	"github.com/evsrc/runtime/tenancy"
	"github.com/google/uuid"
)

type callerFunc func(context.Context, ProcessRequest) (ProcessResponse, error)

func (fn callerFunc) Call(ctx context.Context, req ProcessRequest) (ProcessResponse, error) {
	return fn(ctx, req)
}

func TestFilter(t *testing.T) {
	t.Parallel()

	ev := streams.Event{
		Event:    events.CommittedEvent{EventLogSequenceNumber: 3},
		Position: 3,
	}

	t.Run("it sends the event to the client", func(t *testing.T) {
		t.Parallel()

		var got ProcessRequest
		f := Filter{
			Caller: callerFunc(func(_ context.Context, req ProcessRequest) (ProcessResponse, error) {
				got = req
				return ProcessResponse{Outcome: Succeeded, IsIncluded: true, Partition: "<partition>"}, nil
			}),
		}

		retry := &processing.RetryAttempt{Reason: "<reason>", Count: 1}
		res := f.Filter(context.Background(), ev, "<source partition>", retry)

		test.Expect(t, "unexpected result", res.String(), `included in partition "<partition>"`)
		test.Expect(
			t,
			"unexpected request",
			got,
			ProcessRequest{
				Event:     ev.Event,
				Position:  3,
				Partition: "<source partition>",
				Retry:     retry,
			},
		)
	})

	t.Run("it fails without retrying when the call fails", func(t *testing.T) {
		t.Parallel()

		f := Filter{
			Caller: callerFunc(func(context.Context, ProcessRequest) (ProcessResponse, error) {
				return ProcessResponse{}, reversecall.ErrDisconnected
			}),
		}

		res := f.Filter(context.Background(), ev, streams.NoPartition, nil)
		test.Expect(t, "unexpected result", res.String(), "failed: disconnected: client disconnected")
	})
}

func TestHandler(t *testing.T) {
	t.Parallel()

	t.Run("it ignores inclusion in the client's response", func(t *testing.T) {
		t.Parallel()

		h := Handler{
			Caller: callerFunc(func(context.Context, ProcessRequest) (ProcessResponse, error) {
				return ProcessResponse{Outcome: Succeeded, IsIncluded: true, Partition: "<partition>"}, nil
			}),
		}

		res := h.Process(context.Background(), streams.Event{}, streams.NoPartition)
		test.Expect(t, "unexpected result", res.String(), "succeeded")
	})

	t.Run("it conveys retries requested by the client", func(t *testing.T) {
		t.Parallel()

		h := Handler{
			Caller: callerFunc(func(_ context.Context, req ProcessRequest) (ProcessResponse, error) {
				if req.Retry == nil || req.Retry.Count != 2 {
					return ProcessResponse{}, errors.New("unexpected retry attempt")
				}
				return NewProcessResponse(processing.Retry("<reason>", time.Second)), nil
			}),
		}

		res := h.ProcessRetry(context.Background(), streams.Event{}, streams.NoPartition, "<reason>", 2)
		test.Expect(t, "unexpected result", res.String(), "retry in 1s: <reason>")
	})

	t.Run("it stops the stream processor without advancing when the client disconnects", func(t *testing.T) {
		t.Parallel()

		ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)

		keyspaces := &memory.KeyValueStore{}
		stores := &journalstreams.Stores{
			Journals:  &memory.JournalStore{},
			Keyspaces: keyspaces,
		}
		tenant := tenancy.ID(uuid.New())

		store, err := stores.ForTenant(tenant)
		if err != nil {
			t.Fatal(err)
		}

		for i := 0; i < 7; i++ {
			if _, err := store.CommitToEventLog(ctx, streams.DefaultScope, events.CommittedEvent{}); err != nil {
				t.Fatal(err)
			}
		}

		pipe := reversecall.NewPipe[HandlerArguments, ProcessRequest, ProcessResponse](ctx)
		t.Cleanup(pipe.Close)

		dispatcher := reversecall.NewDispatcher(pipe.Server(), test.NewLogger(t))

		go reversecall.Serve(
			ctx,
			pipe.Client(),
			HandlerArguments{},
			func(_ context.Context, req ProcessRequest) ProcessResponse {
				if req.Position == 5 {
					pipe.Close()
					<-ctx.Done()
				}
				return NewProcessResponse(processing.Succeeded())
			},
			nil,
		)

		if _, err := dispatcher.ReceiveArguments(ctx); err != nil {
			t.Fatal(err)
		}

		test.
			RunInBackground(t, dispatcher.Run).
			UntilStopped()

		states := &streamprocessing.StateRepository{Keyspaces: keyspaces}
		key := streamprocessing.Key{
			Scope:          streams.DefaultScope,
			EventProcessor: processing.EventProcessorID(uuid.New()),
			SourceStream:   streams.EventLog,
		}

		sp := &streamprocessing.StreamProcessor{
			Tenant:    tenant,
			Key:       key,
			Processor: Handler{ID: key.EventProcessor, Caller: dispatcher},
			Stream:    store,
			States:    states,
			Telemetry: test.NewTelemetryProvider(t),
		}

		if err := sp.Run(ctx); err != nil {
			t.Fatal(err)
		}

		s, _, err := states.Get(ctx, tenant, key)
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(t, "unexpected phase", s.Phase, streamprocessing.Stopping)
		test.Expect(t, "unexpected position", s.Position, streams.Position(5))

		if !strings.HasPrefix(s.FailureReason, "disconnected") {
			t.Fatalf("unexpected failure reason: %s", s.FailureReason)
		}
	})
}

func TestProcessResponse(t *testing.T) {
	t.Parallel()

	cases := []processing.Result{
		processing.Succeeded(),
		processing.Included("<partition>"),
		processing.Failed("<reason>"),
		processing.Retry("<reason>", time.Minute),
	}

	for _, want := range cases {
		want := want

		t.Run(want.String(), func(t *testing.T) {
			t.Parallel()

			got := NewProcessResponse(want).Result()
			test.Expect(t, "unexpected result", got.String(), want.String())
		})
	}

	t.Run("it fails when the outcome is unknown", func(t *testing.T) {
		t.Parallel()

		res := ProcessResponse{Outcome: 99}.Result()
		test.Expect(t, "unexpected result", res.Succeeded() || res.Retry(), false)
	})
}
