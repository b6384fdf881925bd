package services_test

import (
	"context"
	"testing"

	"github.com/evsrc/runtime/events"
	"github.com/evsrc/runtime/internal/filters"
	"github.com/evsrc/runtime/internal/processing"
	"github.com/evsrc/runtime/internal/remote"
	"github.com/evsrc/runtime/internal/reversecall"
	. "github.com/evsrc/runtime/internal/services"
	"github.com/evsrc/runtime/internal/streamprocessing"
	"github.com/evsrc/runtime/internal/streams"
	"github.com/evsrc/runtime/internal/streams/journalstreams"
	"github.com/evsrc/runtime/internal/test"
	"github.com/evsrc/runtime/persistence/driver/memory"
	"github.com/evsrc/runtime/tenancy"
	"github.com/google/uuid"
)

type (
	filterPipe  = reversecall.Pipe[remote.FilterArguments, remote.ProcessRequest, remote.ProcessResponse]
	handlerPipe = reversecall.Pipe[remote.HandlerArguments, remote.ProcessRequest, remote.ProcessResponse]
)

type dependencies struct {
	Keyspaces     *memory.KeyValueStore
	Host          *Host
	Store         streams.Store
	Tenant        tenancy.ID
	Filters       *Filters
	EventHandlers *EventHandlers
}

func setup(t *testing.T) (deps dependencies) {
	keyspaces := &memory.KeyValueStore{}
	stores := &journalstreams.Stores{
		Journals:  &memory.JournalStore{},
		Keyspaces: keyspaces,
	}
	states := &streamprocessing.StateRepository{Keyspaces: keyspaces}

	supervisors := &streamprocessing.Supervisors{
		Streams:   stores,
		States:    states,
		Telemetry: test.NewTelemetryProvider(t),
		Logger:    test.NewLogger(t),
	}
	t.Cleanup(supervisors.Shutdown)

	stores.AfterWrite = supervisors.Notify

	deps.Keyspaces = keyspaces
	deps.Tenant = tenancy.ID(uuid.New())
	deps.Host = &Host{
		Tenants:     tenancy.Static{deps.Tenant},
		Streams:     stores,
		Supervisors: supervisors,
		Validator: &filters.Validator{
			Streams: stores,
			States:  states,
		},
		Logger: test.NewLogger(t),
	}

	var err error
	deps.Store, err = stores.ForTenant(deps.Tenant)
	if err != nil {
		t.Fatal(err)
	}

	deps.Filters = &Filters{Host: deps.Host}
	deps.EventHandlers = &EventHandlers{Host: deps.Host}

	return deps
}

func (d dependencies) commit(t *testing.T, types ...events.Artifact) {
	t.Helper()

	for _, typ := range types {
		if _, err := d.Store.CommitToEventLog(
			context.Background(),
			streams.DefaultScope,
			events.CommittedEvent{Type: typ},
		); err != nil {
			t.Fatal(err)
		}
	}
}

func expectFailure(t *testing.T, err error, id uuid.UUID) {
	t.Helper()

	f := test.ExpectErrorAs[reversecall.Failure](t, err)
	test.Expect(t, "unexpected failure ID", f.ID, id)
}

func TestFilters(t *testing.T) {
	t.Parallel()

	typeA := events.Artifact{ID: uuid.New()}
	typeB := events.Artifact{ID: uuid.New()}

	// connect connects a client that includes events of type A.
	connect := func(
		t *testing.T,
		deps dependencies,
		args remote.FilterArguments,
	) (pipe *filterPipe, accepted <-chan struct{}, result <-chan error) {
		ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)

		pipe = reversecall.NewPipe[remote.FilterArguments, remote.ProcessRequest, remote.ProcessResponse](ctx)
		t.Cleanup(pipe.Close)

		test.
			RunInBackground(t, func(ctx context.Context) error {
				return deps.Filters.Connect(ctx, pipe.Server())
			}).
			UntilStopped()

		acc := make(chan struct{})
		res := make(chan error, 1)

		go func() {
			res <- reversecall.Serve(
				ctx,
				pipe.Client(),
				args,
				func(_ context.Context, req remote.ProcessRequest) remote.ProcessResponse {
					if req.Event.Type == typeA {
						return remote.NewProcessResponse(processing.Included(streams.NoPartition))
					}
					return remote.NewProcessResponse(processing.Excluded())
				},
				func() { close(acc) },
			)
		}()

		return pipe, acc, res
	}

	t.Run("it filters the event log using the client's decisions", func(t *testing.T) {
		t.Parallel()

		deps := setup(t)
		deps.commit(t, typeA, typeB, typeA)

		target := streams.ID(uuid.New())
		_, accepted, _ := connect(t, deps, remote.FilterArguments{Filter: target})

		test.ExpectChannelToClose(t, accepted)

		var got []streams.Event
		test.ExpectEventually(
			t,
			"target stream was not populated",
			func() bool {
				var err error
				got, err = deps.Store.FetchRange(
					context.Background(),
					streams.DefaultScope,
					target,
					streams.PositionRange{Length: 10},
				)
				return err == nil && len(got) == 2
			},
		)

		test.Expect(t, "unexpected sequence number", got[0].Event.EventLogSequenceNumber, uint64(0))
		test.Expect(t, "unexpected sequence number", got[1].Event.EventLogSequenceNumber, uint64(2))
	})

	t.Run("it accepts a reconnection of an unchanged filter", func(t *testing.T) {
		t.Parallel()

		deps := setup(t)
		deps.commit(t, typeA, typeB, typeA)

		target := streams.ID(uuid.New())
		pipe, accepted, _ := connect(t, deps, remote.FilterArguments{Filter: target})
		test.ExpectChannelToClose(t, accepted)

		test.ExpectEventually(
			t,
			"filter did not process the event log",
			func() bool {
				s, ok, err := deps.Host.Validator.States.Get(
					context.Background(),
					deps.Tenant,
					streamprocessing.Key{
						Scope:          streams.DefaultScope,
						EventProcessor: processing.EventProcessorID(target),
						SourceStream:   streams.EventLog,
					},
				)
				return err == nil && ok && s.Position == 3
			},
		)

		pipe.Close()

		sup, err := deps.Host.Supervisors.ForTenant(deps.Tenant)
		if err != nil {
			t.Fatal(err)
		}

		test.ExpectEventually(
			t,
			"filter was not removed when the client disconnected",
			func() bool {
				return !sup.IsRegistered(
					streamprocessing.Key{
						Scope:          streams.DefaultScope,
						EventProcessor: processing.EventProcessorID(target),
						SourceStream:   streams.EventLog,
					},
				)
			},
		)

		_, accepted, _ = connect(t, deps, remote.FilterArguments{Filter: target})
		test.ExpectChannelToClose(t, accepted)
	})

	t.Run("it disconnects the client when its stream processor fails", func(t *testing.T) {
		t.Parallel()

		ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
		deps := setup(t)

		pipe := reversecall.NewPipe[remote.FilterArguments, remote.ProcessRequest, remote.ProcessResponse](ctx)
		t.Cleanup(pipe.Close)

		connected := make(chan error, 1)
		go func() {
			connected <- deps.Filters.Connect(ctx, pipe.Server())
		}()

		accepted := make(chan struct{})
		go reversecall.Serve(
			ctx,
			pipe.Client(),
			remote.FilterArguments{Filter: streams.ID(uuid.New())},
			func(context.Context, remote.ProcessRequest) remote.ProcessResponse {
				return remote.NewProcessResponse(processing.Included(streams.NoPartition))
			},
			func() { close(accepted) },
		)

		test.ExpectChannelToClose(t, accepted)

		memory.FailKeyspaceSetAlways(
			deps.Keyspaces,
			"stream-processor-states",
			deps.Tenant.String(),
		)
		deps.commit(t, typeA)

		select {
		case err := <-connected:
			test.ExpectErrorIs(t, err, memory.ErrInjected)
		case <-ctx.Done():
			t.Fatal("the connection remained open after its stream processor failed")
		}
	})

	t.Run("it rejects a filter that targets the event log", func(t *testing.T) {
		t.Parallel()

		deps := setup(t)
		_, _, result := connect(t, deps, remote.FilterArguments{Filter: streams.EventLog})

		expectFailure(t, <-result, reversecall.InvalidTargetStream)
	})

	t.Run("it rejects a filter that is already connected", func(t *testing.T) {
		t.Parallel()

		deps := setup(t)

		target := streams.ID(uuid.New())
		_, accepted, _ := connect(t, deps, remote.FilterArguments{Filter: target})
		test.ExpectChannelToClose(t, accepted)

		_, _, result := connect(t, deps, remote.FilterArguments{Filter: target})
		expectFailure(t, <-result, reversecall.RegistrationFailed)
	})

	t.Run("it rejects a connection that does not start with arguments", func(t *testing.T) {
		t.Parallel()

		ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
		deps := setup(t)

		pipe := reversecall.NewPipe[remote.FilterArguments, remote.ProcessRequest, remote.ProcessResponse](ctx)
		t.Cleanup(pipe.Close)

		test.
			RunInBackground(t, func(ctx context.Context) error {
				return deps.Filters.Connect(ctx, pipe.Server())
			}).
			UntilStopped()

		client := pipe.Client()
		if err := client.Send(&reversecall.ClientMessage[remote.FilterArguments, remote.ProcessResponse]{
			Response: &reversecall.Response[remote.ProcessResponse]{},
		}); err != nil {
			t.Fatal(err)
		}

		msg, err := client.Recv()
		if err != nil {
			t.Fatal(err)
		}

		if msg.Registration == nil || msg.Registration.Failure == nil {
			t.Fatal("expected a registration failure")
		}

		test.Expect(t, "unexpected failure ID", msg.Registration.Failure.ID, reversecall.NoRegistrationReceived)
	})
}

func TestEventHandlers(t *testing.T) {
	t.Parallel()

	typeA := events.Artifact{ID: uuid.New()}
	typeB := events.Artifact{ID: uuid.New()}

	connect := func(
		t *testing.T,
		deps dependencies,
		args remote.HandlerArguments,
		handle func(context.Context, remote.ProcessRequest) remote.ProcessResponse,
	) (accepted <-chan struct{}, result <-chan error) {
		ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)

		pipe := reversecall.NewPipe[remote.HandlerArguments, remote.ProcessRequest, remote.ProcessResponse](ctx)
		t.Cleanup(pipe.Close)

		test.
			RunInBackground(t, func(ctx context.Context) error {
				return deps.EventHandlers.Connect(ctx, pipe.Server())
			}).
			UntilStopped()

		acc := make(chan struct{})
		res := make(chan error, 1)

		go func() {
			res <- reversecall.Serve(ctx, pipe.Client(), args, handle, func() { close(acc) })
		}()

		return acc, res
	}

	t.Run("it sends events of the handled types to the client", func(t *testing.T) {
		t.Parallel()

		deps := setup(t)
		deps.commit(t, typeA, typeB, typeA)

		handled := make(chan uint64, 10)
		accepted, _ := connect(
			t,
			deps,
			remote.HandlerArguments{
				Handler:     processing.EventProcessorID(uuid.New()),
				Types:       []events.Artifact{typeA},
				Partitioned: true,
			},
			func(_ context.Context, req remote.ProcessRequest) remote.ProcessResponse {
				handled <- req.Event.EventLogSequenceNumber
				return remote.NewProcessResponse(processing.Succeeded())
			},
		)

		test.ExpectChannelToClose(t, accepted)
		test.ExpectChannelToReceive(t, handled, uint64(0))
		test.ExpectChannelToReceive(t, handled, uint64(2))

		deps.commit(t, typeB, typeA)
		test.ExpectChannelToReceive(t, handled, uint64(4))
	})

	t.Run("it rejects a handler that handles no event types", func(t *testing.T) {
		t.Parallel()

		deps := setup(t)

		_, result := connect(
			t,
			deps,
			remote.HandlerArguments{
				Handler: processing.EventProcessorID(uuid.New()),
			},
			func(context.Context, remote.ProcessRequest) remote.ProcessResponse {
				return remote.ProcessResponse{}
			},
		)

		expectFailure(t, <-result, reversecall.InvalidArguments)
	})

	t.Run("it rejects a handler whose ID is the event log", func(t *testing.T) {
		t.Parallel()

		deps := setup(t)

		_, result := connect(
			t,
			deps,
			remote.HandlerArguments{
				Types: []events.Artifact{typeA},
			},
			func(context.Context, remote.ProcessRequest) remote.ProcessResponse {
				return remote.ProcessResponse{}
			},
		)

		expectFailure(t, <-result, reversecall.InvalidTargetStream)
	})
}
