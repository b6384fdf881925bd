package grpctransport_test

import (
	"context"
	"errors"
	"testing"

	"github.com/evsrc/runtime/events"
	"github.com/evsrc/runtime/internal/filters"
	"github.com/evsrc/runtime/internal/processing"
	"github.com/evsrc/runtime/internal/remote"
	"github.com/evsrc/runtime/internal/reversecall"
	"github.com/evsrc/runtime/internal/services"
	"github.com/evsrc/runtime/internal/streamprocessing"
	"github.com/evsrc/runtime/internal/streams"
	"github.com/evsrc/runtime/internal/streams/journalstreams"
	"github.com/evsrc/runtime/internal/test"
	. "github.com/evsrc/runtime/internal/transport/grpctransport"
	"github.com/evsrc/runtime/persistence/driver/memory"
	"github.com/evsrc/runtime/tenancy"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func setup(t *testing.T) (deps struct {
	Conn  grpc.ClientConnInterface
	Store streams.Store
}) {
	keyspaces := &memory.KeyValueStore{}
	stores := &journalstreams.Stores{
		Journals:  &memory.JournalStore{},
		Keyspaces: keyspaces,
	}
	states := &streamprocessing.StateRepository{Keyspaces: keyspaces}

	supervisors := &streamprocessing.Supervisors{
		Streams: stores,
		States:  states,
		Logger:  test.NewLogger(t),
	}
	t.Cleanup(supervisors.Shutdown)
	stores.AfterWrite = supervisors.Notify

	tenant := tenancy.ID(uuid.New())
	host := &services.Host{
		Tenants:     tenancy.Static{tenant},
		Streams:     stores,
		Supervisors: supervisors,
		Validator:   &filters.Validator{Streams: stores, States: states},
		Logger:      test.NewLogger(t),
	}

	deps.Conn = test.RunGRPCServer(
		t,
		func(s grpc.ServiceRegistrar) {
			RegisterFiltersServer(s, &services.Filters{Host: host})
			RegisterEventHandlersServer(s, &services.EventHandlers{Host: host})
		},
	)

	var err error
	deps.Store, err = stores.ForTenant(tenant)
	if err != nil {
		t.Fatal(err)
	}

	return deps
}

func TestConnectFilter(t *testing.T) {
	t.Parallel()

	typeA := events.Artifact{ID: uuid.New()}
	typeB := events.Artifact{ID: uuid.New()}

	t.Run("it filters events over the connection", func(t *testing.T) {
		t.Parallel()

		ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
		deps := setup(t)

		for _, typ := range []events.Artifact{typeA, typeB, typeA} {
			if _, err := deps.Store.CommitToEventLog(
				ctx,
				streams.DefaultScope,
				events.CommittedEvent{Type: typ, EventSource: "<source>"},
			); err != nil {
				t.Fatal(err)
			}
		}

		target := streams.ID(uuid.New())
		accepted := make(chan struct{})

		test.
			RunInBackground(t, func(ctx context.Context) error {
				return ConnectFilter(
					ctx,
					deps.Conn,
					remote.FilterArguments{Filter: target, Partitioned: true},
					func(_ context.Context, req remote.ProcessRequest) remote.ProcessResponse {
						if req.Event.Type == typeA {
							return remote.NewProcessResponse(
								processing.Included(streams.PartitionID(req.Event.EventSource)),
							)
						}
						return remote.NewProcessResponse(processing.Excluded())
					},
					func() { close(accepted) },
				)
			}).
			UntilStopped()

		test.ExpectChannelToClose(t, accepted)

		var got []streams.Event
		test.ExpectEventually(
			t,
			"target stream was not populated",
			func() bool {
				var err error
				got, err = deps.Store.FetchRange(
					ctx,
					streams.DefaultScope,
					target,
					streams.PositionRange{Length: 10},
				)
				return err == nil && len(got) == 2
			},
		)

		test.Expect(t, "unexpected partition", got[0].Partition, streams.PartitionID("<source>"))
		test.Expect(t, "unexpected sequence number", got[1].Event.EventLogSequenceNumber, uint64(2))
	})

	t.Run("it returns the context error when the client's context is canceled", func(t *testing.T) {
		t.Parallel()

		ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
		deps := setup(t)

		clientCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		accepted := make(chan struct{})
		result := make(chan error, 1)

		go func() {
			result <- ConnectFilter(
				clientCtx,
				deps.Conn,
				remote.FilterArguments{Filter: streams.ID(uuid.New())},
				func(context.Context, remote.ProcessRequest) remote.ProcessResponse {
					return remote.NewProcessResponse(processing.Excluded())
				},
				func() { close(accepted) },
			)
		}()

		test.ExpectChannelToClose(t, accepted)
		cancel()

		select {
		case err := <-result:
			test.ExpectErrorIs(t, err, context.Canceled)

			if _, ok := status.FromError(err); ok {
				t.Fatalf("did not expect a status error, got %v", err)
			}
		case <-ctx.Done():
			t.Fatal(ctx.Err())
		}
	})

	t.Run("it returns a status error when the filter is rejected", func(t *testing.T) {
		t.Parallel()

		ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
		deps := setup(t)

		err := ConnectFilter(
			ctx,
			deps.Conn,
			remote.FilterArguments{Filter: streams.EventLog},
			func(context.Context, remote.ProcessRequest) remote.ProcessResponse {
				return remote.ProcessResponse{}
			},
			nil,
		)

		test.Expect(t, "unexpected status code", status.Code(err), codes.FailedPrecondition)

		f, ok := FailureFromError(err)
		if !ok {
			t.Fatalf("expected a failure, got %v", err)
		}

		test.Expect(t, "unexpected failure ID", f.ID, reversecall.InvalidTargetStream)
	})
}

func TestConnectEventHandler(t *testing.T) {
	t.Parallel()

	ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
	deps := setup(t)

	typeA := events.Artifact{ID: uuid.New()}

	handled := make(chan uint64, 10)

	test.
		RunInBackground(t, func(ctx context.Context) error {
			return ConnectEventHandler(
				ctx,
				deps.Conn,
				remote.HandlerArguments{
					Handler: processing.EventProcessorID(uuid.New()),
					Types:   []events.Artifact{typeA},
				},
				func(_ context.Context, req remote.ProcessRequest) remote.ProcessResponse {
					handled <- req.Event.EventLogSequenceNumber
					return remote.NewProcessResponse(processing.Succeeded())
				},
				nil,
			)
		}).
		UntilStopped()

	if _, err := deps.Store.CommitToEventLog(
		ctx,
		streams.DefaultScope,
		events.CommittedEvent{Type: typeA},
	); err != nil {
		t.Fatal(err)
	}

	test.ExpectChannelToReceive(t, handled, uint64(0))
}

func TestClientError(t *testing.T) {
	t.Parallel()

	t.Run("it returns other errors unchanged", func(t *testing.T) {
		t.Parallel()

		want := errors.New("<error>")
		test.Expect(t, "unexpected error", ClientError(want), want)

		if _, ok := FailureFromError(want); ok {
			t.Fatal("did not expect a failure")
		}
	})

	t.Run("it preserves the failure", func(t *testing.T) {
		t.Parallel()

		want := reversecall.Failure{
			ID:     reversecall.RegistrationFailed,
			Reason: "<reason>",
		}

		got, ok := FailureFromError(ClientError(want))
		if !ok {
			t.Fatal("expected a failure")
		}

		test.Expect(t, "unexpected failure", got, want)
	})
}
