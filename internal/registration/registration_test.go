package registration_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evsrc/runtime/events"
	"github.com/evsrc/runtime/internal/filters"
	"github.com/evsrc/runtime/internal/processing"
	. "github.com/evsrc/runtime/internal/registration"
	"github.com/evsrc/runtime/internal/streamprocessing"
	"github.com/evsrc/runtime/internal/streams"
	"github.com/evsrc/runtime/internal/streams/journalstreams"
	"github.com/evsrc/runtime/internal/test"
	"github.com/evsrc/runtime/persistence/driver/memory"
	"github.com/evsrc/runtime/tenancy"
	"github.com/google/uuid"
)

func TestRegistration(t *testing.T) {
	t.Parallel()

	typeA := events.Artifact{ID: uuid.New()}
	typeB := events.Artifact{ID: uuid.New()}

	type dependencies struct {
		Keyspaces    *memory.KeyValueStore
		Tenants      tenancy.Static
		Stores       *journalstreams.Stores
		States       *streamprocessing.StateRepository
		Supervisors  *streamprocessing.Supervisors
		Registration *Registration
	}

	setup := func(t *testing.T) (deps dependencies) {
		keyspaces := &memory.KeyValueStore{}
		deps.Keyspaces = keyspaces

		deps.Tenants = tenancy.Static{
			tenancy.ID(uuid.New()),
			tenancy.ID(uuid.New()),
			tenancy.ID(uuid.New()),
		}
		deps.Stores = &journalstreams.Stores{
			Journals:  &memory.JournalStore{},
			Keyspaces: keyspaces,
		}
		deps.States = &streamprocessing.StateRepository{Keyspaces: keyspaces}
		deps.Supervisors = &streamprocessing.Supervisors{
			Streams:   deps.Stores,
			States:    deps.States,
			Telemetry: test.NewTelemetryProvider(t),
			Logger:    test.NewLogger(t),
		}
		t.Cleanup(deps.Supervisors.Shutdown)

		deps.Stores.AfterWrite = deps.Supervisors.Notify

		def := filters.Definition{
			Source: streams.EventLog,
			Target: streams.ID(uuid.New()),
			Kind:   filters.TypeFilter,
			Types:  []events.Artifact{typeA},
		}

		deps.Registration = &Registration{
			Tenants:     deps.Tenants,
			Streams:     deps.Stores,
			Supervisors: deps.Supervisors,
			Validator: &filters.Validator{
				Streams: deps.Stores,
				States:  deps.States,
			},
			Logger:  test.NewLogger(t),
			Scope:   streams.DefaultScope,
			Filter:  def,
			Decider: filters.NewTypeDecider(def),
		}

		return deps
	}

	isRegistered := func(t *testing.T, deps dependencies, tenant tenancy.ID) bool {
		t.Helper()

		sup, err := deps.Supervisors.ForTenant(tenant)
		if err != nil {
			t.Fatal(err)
		}

		return sup.IsRegistered(
			streamprocessing.Key{
				Scope:          streams.DefaultScope,
				EventProcessor: processing.EventProcessorID(deps.Registration.Filter.Target),
				SourceStream:   deps.Registration.Filter.Source,
			},
		)
	}

	register := func(t *testing.T, deps dependencies) Outcome {
		t.Helper()

		ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)

		outcome, err := deps.Registration.Register(ctx)
		if err != nil {
			t.Fatal(err)
		}

		return outcome
	}

	t.Run("func Register()", func(t *testing.T) {
		t.Parallel()

		t.Run("it creates a stream processor for each tenant", func(t *testing.T) {
			t.Parallel()

			deps := setup(t)

			outcome := register(t, deps)
			test.Expect(t, "unexpected outcome", outcome, Outcome{Succeeded: true})

			for _, tenant := range deps.Tenants {
				test.Expect(t, "stream processor is not registered", isRegistered(t, deps, tenant), true)
			}
		})

		t.Run("it does not repeat the attributes of its logger", func(t *testing.T) {
			t.Parallel()

			deps := setup(t)

			var buf bytes.Buffer
			deps.Registration.Logger = slog.
				New(slog.NewJSONHandler(&buf, nil)).
				With(slog.String("filter", deps.Registration.Filter.Target.String()))

			outcome := register(t, deps)
			test.Expect(t, "unexpected outcome", outcome.Succeeded, true)

			logs := buf.String()
			if !strings.Contains(logs, "event processor registered") {
				t.Fatalf("expected registration to be logged, got %s", logs)
			}

			test.Expect(t, "unexpected number of filter attributes", strings.Count(logs, `"filter":`), 1)
		})

		t.Run("it fails if the filter writes to the event log", func(t *testing.T) {
			t.Parallel()

			deps := setup(t)
			deps.Registration.Filter.Target = streams.EventLog

			outcome := register(t, deps)
			test.Expect(t, "unexpected outcome", outcome.Succeeded, false)

			if !strings.Contains(outcome.Reason, "event log") {
				t.Fatalf("unexpected reason: %s", outcome.Reason)
			}
		})

		t.Run("it fails if the filter is invalid for any tenant", func(t *testing.T) {
			t.Parallel()

			ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
			deps := setup(t)

			tenant := deps.Tenants[1]
			store, err := deps.Stores.ForTenant(tenant)
			if err != nil {
				t.Fatal(err)
			}

			changed := deps.Registration.Filter
			changed.Partitioned = true

			if err := filters.PersistDefinition(ctx, store, streams.DefaultScope, changed); err != nil {
				t.Fatal(err)
			}

			outcome := register(t, deps)
			test.Expect(t, "unexpected outcome", outcome.Succeeded, false)

			if !strings.Contains(outcome.Reason, tenant.String()) {
				t.Fatalf("expected reason to name the tenant: %s", outcome.Reason)
			}

			for _, tenant := range deps.Tenants {
				test.Expect(t, "stream processor is registered", isRegistered(t, deps, tenant), false)
			}
		})

		t.Run("it removes the stream processors of every tenant if any can not be created", func(t *testing.T) {
			t.Parallel()

			deps := setup(t)

			sup, err := deps.Supervisors.ForTenant(deps.Tenants[2])
			if err != nil {
				t.Fatal(err)
			}

			key := streamprocessing.Key{
				Scope:          streams.DefaultScope,
				EventProcessor: processing.EventProcessorID(deps.Registration.Filter.Target),
				SourceStream:   deps.Registration.Filter.Source,
			}

			if _, err := sup.Register(key, processing.ProcessorFunc{}); err != nil {
				t.Fatal(err)
			}

			outcome := register(t, deps)
			test.Expect(t, "unexpected outcome", outcome.Succeeded, false)

			if !strings.Contains(outcome.Reason, deps.Tenants[2].String()) {
				t.Fatalf("expected reason to name the tenant: %s", outcome.Reason)
			}

			test.Expect(t, "stream processor is registered", isRegistered(t, deps, deps.Tenants[0]), false)
			test.Expect(t, "stream processor is registered", isRegistered(t, deps, deps.Tenants[1]), false)
			test.Expect(t, "existing stream processor was removed", isRegistered(t, deps, deps.Tenants[2]), true)
		})

		t.Run("it allows only one registration of the same filter", func(t *testing.T) {
			t.Parallel()

			deps := setup(t)
			other := &Registration{
				Tenants:     deps.Registration.Tenants,
				Streams:     deps.Registration.Streams,
				Supervisors: deps.Registration.Supervisors,
				Validator:   deps.Registration.Validator,
				Scope:       deps.Registration.Scope,
				Filter:      deps.Registration.Filter,
				Decider:     deps.Registration.Decider,
			}

			var (
				wg       sync.WaitGroup
				outcomes [2]Outcome
			)

			for i, r := range []*Registration{deps.Registration, other} {
				i, r := i, r

				wg.Add(1)
				go func() {
					defer wg.Done()
					outcomes[i], _ = r.Register(context.Background())
				}()
			}

			wg.Wait()

			test.Expect(
				t,
				"expected exactly one registration to succeed",
				outcomes[0].Succeeded != outcomes[1].Succeeded,
				true,
			)
		})

		t.Run("it returns an error if called more than once", func(t *testing.T) {
			t.Parallel()

			ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
			deps := setup(t)
			register(t, deps)

			_, err := deps.Registration.Register(ctx)
			test.ExpectErrorIs(t, err, ErrAlreadyRegistering)

			if err := deps.Registration.Complete(ctx); err != nil {
				t.Fatal(err)
			}

			_, err = deps.Registration.Register(ctx)
			test.ExpectErrorIs(t, err, ErrAlreadyCompleted)
		})
	})

	t.Run("func Complete()", func(t *testing.T) {
		t.Parallel()

		t.Run("it filters the event log of each tenant", func(t *testing.T) {
			t.Parallel()

			ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
			deps := setup(t)

			for _, tenant := range deps.Tenants {
				store, err := deps.Stores.ForTenant(tenant)
				if err != nil {
					t.Fatal(err)
				}

				for _, typ := range []events.Artifact{typeA, typeB, typeA} {
					if _, err := store.CommitToEventLog(
						ctx,
						streams.DefaultScope,
						events.CommittedEvent{Type: typ},
					); err != nil {
						t.Fatal(err)
					}
				}
			}

			register(t, deps)

			if err := deps.Registration.Complete(ctx); err != nil {
				t.Fatal(err)
			}

			for _, tenant := range deps.Tenants {
				store, err := deps.Stores.ForTenant(tenant)
				if err != nil {
					t.Fatal(err)
				}

				def, ok, err := filters.GetDefinition(ctx, store, streams.DefaultScope, deps.Registration.Filter.Target)
				if err != nil {
					t.Fatal(err)
				}
				if !ok {
					t.Fatal("expected filter definition to be persisted")
				}
				test.Expect(t, "unexpected definition", def, deps.Registration.Filter)

				var got []streams.Event
				test.ExpectEventually(
					t,
					"target stream was not populated",
					func() bool {
						got, err = store.FetchRange(
							ctx,
							streams.DefaultScope,
							deps.Registration.Filter.Target,
							streams.PositionRange{Length: 10},
						)
						return err == nil && len(got) == 2
					},
				)

				test.Expect(t, "unexpected sequence number", got[0].Event.EventLogSequenceNumber, uint64(0))
				test.Expect(t, "unexpected sequence number", got[1].Event.EventLogSequenceNumber, uint64(2))
			}
		})

		t.Run("it runs the event handler over the filter's target stream", func(t *testing.T) {
			t.Parallel()

			ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
			deps := setup(t)
			deps.Tenants = deps.Tenants[:1]
			deps.Registration.Tenants = deps.Tenants

			handled := make(chan uint64, 10)
			deps.Registration.Handler = processing.ProcessorFunc{
				ID: processing.EventProcessorID(uuid.New()),
				Fn: func(
					_ context.Context,
					ev streams.Event,
					_ streams.PartitionID,
					_ *processing.RetryAttempt,
				) processing.Result {
					handled <- ev.Event.EventLogSequenceNumber
					return processing.Succeeded()
				},
			}

			register(t, deps)

			if err := deps.Registration.Complete(ctx); err != nil {
				t.Fatal(err)
			}

			store, err := deps.Stores.ForTenant(deps.Tenants[0])
			if err != nil {
				t.Fatal(err)
			}

			for _, typ := range []events.Artifact{typeB, typeA} {
				if _, err := store.CommitToEventLog(
					ctx,
					streams.DefaultScope,
					events.CommittedEvent{Type: typ},
				); err != nil {
					t.Fatal(err)
				}
			}

			test.ExpectChannelToReceive(t, handled, uint64(1))
		})

		t.Run("it removes the stream processors if the registration failed", func(t *testing.T) {
			t.Parallel()

			ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
			deps := setup(t)
			register(t, deps)

			if err := deps.Registration.Fail(ctx); err != nil {
				t.Fatal(err)
			}

			test.Expect(t, "unexpected outcome", deps.Registration.Outcome().Succeeded, false)

			for _, tenant := range deps.Tenants {
				test.Expect(t, "stream processor is registered", isRegistered(t, deps, tenant), false)
			}
		})

		t.Run("it keeps the reason of a registration that already failed", func(t *testing.T) {
			t.Parallel()

			ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
			deps := setup(t)
			deps.Registration.Filter.Target = streams.EventLog
			register(t, deps)

			if err := deps.Registration.Fail(ctx); err != nil {
				t.Fatal(err)
			}

			outcome := deps.Registration.Outcome()
			test.Expect(t, "unexpected outcome", outcome.Succeeded, false)

			if !strings.Contains(outcome.Reason, "event log") {
				t.Fatalf("unexpected reason: %s", outcome.Reason)
			}
		})

		t.Run("it returns an error if called more than once", func(t *testing.T) {
			t.Parallel()

			ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
			deps := setup(t)
			register(t, deps)

			if err := deps.Registration.Complete(ctx); err != nil {
				t.Fatal(err)
			}

			err := deps.Registration.Complete(ctx)
			test.ExpectErrorIs(t, err, ErrAlreadyCompleted)
		})
	})

	t.Run("func Wait()", func(t *testing.T) {
		t.Parallel()

		t.Run("it returns the error of a stream processor that failed", func(t *testing.T) {
			t.Parallel()

			ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
			deps := setup(t)
			deps.Tenants = deps.Tenants[:1]
			deps.Registration.Tenants = deps.Tenants
			register(t, deps)

			memory.FailKeyspaceSetAlways(
				deps.Keyspaces,
				"stream-processor-states",
				deps.Tenants[0].String(),
			)

			if err := deps.Registration.Complete(ctx); err != nil {
				t.Fatal(err)
			}

			store, err := deps.Stores.ForTenant(deps.Tenants[0])
			if err != nil {
				t.Fatal(err)
			}

			if _, err := store.CommitToEventLog(
				ctx,
				streams.DefaultScope,
				events.CommittedEvent{Type: typeA},
			); err != nil {
				t.Fatal(err)
			}

			test.ExpectErrorIs(t, deps.Registration.Wait(ctx), memory.ErrInjected)
		})

		t.Run("it does not report stream processors that are stopped by Close()", func(t *testing.T) {
			t.Parallel()

			ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
			deps := setup(t)
			register(t, deps)

			if err := deps.Registration.Complete(ctx); err != nil {
				t.Fatal(err)
			}

			waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()

			result := make(chan error, 1)
			go func() {
				result <- deps.Registration.Wait(waitCtx)
			}()

			if err := deps.Registration.Close(); err != nil {
				t.Fatal(err)
			}

			test.ExpectErrorIs(t, <-result, context.DeadlineExceeded)
		})
	})

	t.Run("func Close()", func(t *testing.T) {
		t.Parallel()

		t.Run("it removes the stream processors", func(t *testing.T) {
			t.Parallel()

			ctx, _ := test.ContextWithTimeout(t, test.DefaultTimeout)
			deps := setup(t)
			register(t, deps)

			if err := deps.Registration.Complete(ctx); err != nil {
				t.Fatal(err)
			}

			if err := deps.Registration.Close(); err != nil {
				t.Fatal(err)
			}

			for _, tenant := range deps.Tenants {
				test.Expect(t, "stream processor is registered", isRegistered(t, deps, tenant), false)
			}

			if err := deps.Registration.Close(); err != nil {
				t.Fatal(err)
			}
		})

		t.Run("it completes a registration that was not completed", func(t *testing.T) {
			t.Parallel()

			deps := setup(t)
			register(t, deps)

			if err := deps.Registration.Close(); err != nil {
				t.Fatal(err)
			}

			test.Expect(t, "unexpected outcome", deps.Registration.Outcome().Succeeded, false)

			for _, tenant := range deps.Tenants {
				test.Expect(t, "stream processor is registered", isRegistered(t, deps, tenant), false)
			}
		})
	})
}
