// Package registration registers event processors as a set of stream
// processors, one per tenant, that succeed or fail as a unit.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/evsrc/runtime/internal/filters"
	"github.com/evsrc/runtime/internal/processing"
	"github.com/evsrc/runtime/internal/streamprocessing"
	"github.com/evsrc/runtime/internal/streams"
	"github.com/evsrc/runtime/tenancy"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrAlreadyRegistering is returned by [Registration.Register] if it has
	// already been called.
	ErrAlreadyRegistering = errors.New("registration has already been attempted")

	// ErrAlreadyCompleted is returned when the registration has already been
	// completed.
	ErrAlreadyCompleted = errors.New("registration has already been completed")
)

// Outcome is the outcome of a registration.
type Outcome struct {
	Succeeded bool
	Reason    string
}

func failed(format string, args ...any) Outcome {
	return Outcome{Reason: fmt.Sprintf(format, args...)}
}

type phase int

const (
	created phase = iota
	registering
	registered
	completed
	closed
)

// Registration registers a filter, and optionally an event handler that
// processes the filter's target stream, for every tenant.
type Registration struct {
	Tenants     tenancy.Tenants
	Streams     streams.Stores
	Supervisors *streamprocessing.Supervisors
	Validator   *filters.Validator

	// Logger is the target of the registration's log messages. Its
	// attributes are expected to identify the event processor.
	Logger *slog.Logger

	Scope   streams.ScopeID
	Filter  filters.Definition
	Decider filters.Decider

	// Handler, if non-nil, processes the events in the filter's target
	// stream.
	Handler processing.Processor

	m         sync.Mutex
	phase     phase
	outcome   Outcome
	tenants   []tenancy.ID
	processes []process
}

// process is a stream processor created by the registration.
type process struct {
	Supervisor *streamprocessing.Supervisor
	Key        streamprocessing.Key
}

// Register validates the filter and creates the stream processors for every
// tenant. It may only be called once.
//
// Failure to register is reported by the outcome, not the error. If any
// tenant's processors can not be created, those created for other tenants
// are removed before Register returns. The error is non-nil only if Register
// has already been called.
func (r *Registration) Register(ctx context.Context) (Outcome, error) {
	r.m.Lock()
	switch r.phase {
	case created:
		r.phase = registering
	case completed, closed:
		r.m.Unlock()
		return Outcome{}, ErrAlreadyCompleted
	default:
		r.m.Unlock()
		return Outcome{}, ErrAlreadyRegistering
	}
	r.m.Unlock()

	outcome := r.register(ctx)

	if outcome.Succeeded {
		r.logger().InfoContext(
			ctx,
			"event processor registered",
			slog.Int("tenants", len(r.tenants)),
		)
	} else {
		r.logger().WarnContext(
			ctx,
			"event processor registration failed",
			slog.String("reason", outcome.Reason),
		)
		r.removeProcesses()
	}

	r.m.Lock()
	r.phase = registered
	r.outcome = outcome
	r.m.Unlock()

	return outcome, nil
}

func (r *Registration) register(ctx context.Context) Outcome {
	if res := filters.ValidateTarget(r.Filter); !res.Succeeded() {
		return failed("%s", res.FailureReason())
	}

	tenants, err := r.Tenants.All(ctx)
	if err != nil {
		return failed("unable to list tenants: %s", err)
	}
	r.tenants = tenants

	if outcome := r.validate(ctx, tenants); !outcome.Succeeded {
		return outcome
	}

	for _, tenant := range tenants {
		if err := r.create(tenant); err != nil {
			return failed("unable to create stream processors for tenant %s: %s", tenant, err)
		}
	}

	return Outcome{Succeeded: true}
}

// validate validates the filter for every tenant concurrently.
func (r *Registration) validate(ctx context.Context, tenants []tenancy.ID) Outcome {
	results := make([]filters.ValidationResult, len(tenants))

	g, ctx := errgroup.WithContext(ctx)

	for i, tenant := range tenants {
		i, tenant := i, tenant

		g.Go(func() error {
			res, err := r.Validator.Validate(ctx, tenant, r.Scope, r.Filter, r.Decider)
			if err != nil {
				return fmt.Errorf("unable to validate filter for tenant %s: %w", tenant, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return failed("%s", err)
	}

	for i, res := range results {
		if !res.Succeeded() {
			return failed("filter is invalid for tenant %s: %s", tenants[i], res.FailureReason())
		}
	}

	return Outcome{Succeeded: true}
}

// create registers the stream processors of a single tenant.
func (r *Registration) create(tenant tenancy.ID) error {
	sup, err := r.Supervisors.ForTenant(tenant)
	if err != nil {
		return err
	}

	store, err := r.Streams.ForTenant(tenant)
	if err != nil {
		return err
	}

	filter := &filters.Processor{
		Scope:      r.Scope,
		Definition: r.Filter,
		Decider:    r.Decider,
		Writer:     store,
	}

	if err := r.add(sup, r.Filter.Source, filter); err != nil {
		return err
	}

	if r.Handler != nil {
		return r.add(sup, r.Filter.Target, r.Handler)
	}

	return nil
}

func (r *Registration) add(
	sup *streamprocessing.Supervisor,
	source streams.ID,
	p processing.Processor,
) error {
	key := streamprocessing.Key{
		Scope:          r.Scope,
		EventProcessor: p.Identifier(),
		SourceStream:   source,
	}

	if _, err := sup.Register(key, p); err != nil {
		return err
	}

	r.m.Lock()
	r.processes = append(r.processes, process{sup, key})
	r.m.Unlock()

	return nil
}

// Outcome returns the outcome of the registration. It is only meaningful once
// [Registration.Register] has returned.
func (r *Registration) Outcome() Outcome {
	r.m.Lock()
	defer r.m.Unlock()
	return r.outcome
}

// Complete completes the registration.
//
// If the registration succeeded, the filter's definition is persisted for
// every tenant and the stream processors are started. They run until ctx is
// canceled or the registration is closed. Otherwise the stream processors are
// removed.
func (r *Registration) Complete(ctx context.Context) error {
	r.m.Lock()
	switch r.phase {
	case completed, closed:
		r.m.Unlock()
		return ErrAlreadyCompleted
	case registering:
		r.m.Unlock()
		return ErrAlreadyRegistering
	case created:
		r.outcome = failed("the event processor was never registered")
	}
	r.phase = completed
	outcome := r.outcome
	r.m.Unlock()

	if !outcome.Succeeded {
		r.removeProcesses()
		return nil
	}

	if err := r.start(ctx); err != nil {
		r.m.Lock()
		r.outcome = failed("%s", err)
		r.m.Unlock()

		r.removeProcesses()
		return err
	}

	return nil
}

func (r *Registration) start(ctx context.Context) error {
	for _, tenant := range r.tenants {
		store, err := r.Streams.ForTenant(tenant)
		if err != nil {
			return err
		}

		if err := filters.PersistDefinition(ctx, store, r.Scope, r.Filter); err != nil {
			return fmt.Errorf("unable to persist filter definition for tenant %s: %w", tenant, err)
		}
	}

	for _, p := range r.processes {
		if err := p.Supervisor.Start(ctx, p.Key); err != nil {
			return err
		}
	}

	return nil
}

// Wait blocks until one of the registration's stream processors stops because
// of an error, then returns that error. Processors that are stopped by
// canceling their context or closing the registration are not reported.
//
// It returns ctx's error if ctx is canceled first.
func (r *Registration) Wait(ctx context.Context) error {
	r.m.Lock()
	processes := r.processes
	r.m.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	failures := make(chan error, len(processes))

	for _, p := range processes {
		p := p

		go func() {
			err := p.Supervisor.Wait(ctx, p.Key)
			if err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, streamprocessing.ErrNotRegistered) {
				return
			}

			failures <- fmt.Errorf("stream processor %s failed: %w", p.Key, err)
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-failures:
		return err
	}
}

// Fail marks the registration as failed and completes it. The reason of a
// registration that has already failed is kept.
func (r *Registration) Fail(ctx context.Context) error {
	r.m.Lock()
	if r.phase == registered && r.outcome.Succeeded {
		r.outcome = failed("registration was abandoned")
	}
	r.m.Unlock()

	return r.Complete(ctx)
}

// Close stops and removes the registration's stream processors, completing
// the registration first if necessary. It is safe to call more than once.
func (r *Registration) Close() error {
	r.m.Lock()
	p := r.phase
	r.m.Unlock()

	switch p {
	case closed:
		return nil
	case completed:
	default:
		if err := r.Fail(context.Background()); err != nil && !errors.Is(err, ErrAlreadyCompleted) {
			return err
		}
	}

	r.removeProcesses()

	r.m.Lock()
	r.phase = closed
	r.m.Unlock()

	return nil
}

// removeProcesses stops and removes every stream processor created by the
// registration.
func (r *Registration) removeProcesses() {
	r.m.Lock()
	processes := r.processes
	r.processes = nil
	r.m.Unlock()

	for _, p := range processes {
		if err := p.Supervisor.Stop(p.Key); err != nil && !errors.Is(err, streamprocessing.ErrNotRegistered) {
			r.logger().Warn(
				"unable to stop stream processor",
				slog.String("key", p.Key.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (r *Registration) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
