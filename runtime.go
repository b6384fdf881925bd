// Package runtime hosts the event processors of a multi-tenant event-sourced
// system.
//
// Clients connect filters and event handlers over gRPC. The runtime processes
// each tenant's event log on their behalf, writing the events chosen by each
// filter to its own stream.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/evsrc/runtime/events"
	"github.com/evsrc/runtime/internal/engineconfig"
	"github.com/evsrc/runtime/internal/filters"
	"github.com/evsrc/runtime/internal/services"
	"github.com/evsrc/runtime/internal/streamprocessing"
	"github.com/evsrc/runtime/internal/streams"
	"github.com/evsrc/runtime/internal/streams/journalstreams"
	"github.com/evsrc/runtime/internal/transport/grpctransport"
	"github.com/evsrc/runtime/tenancy"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// ErrUnknownTenant is returned when committing an event for a tenant that is
// not hosted by the runtime.
var ErrUnknownTenant = errors.New("tenant is not hosted by this runtime")

// Runtime hosts the filters and event handlers of every tenant.
type Runtime struct {
	config        engineconfig.Config
	streams       *journalstreams.Stores
	supervisors   *streamprocessing.Supervisors
	filters       *services.Filters
	eventHandlers *services.EventHandlers
}

// New returns a runtime configured by the given options.
func New(options ...Option) (*Runtime, error) {
	cfg, err := engineconfig.New(options)
	if err != nil {
		return nil, err
	}

	stores := &journalstreams.Stores{
		Journals:  cfg.Persistence.Journals,
		Keyspaces: cfg.Persistence.Keyspaces,
	}

	states := &streamprocessing.StateRepository{
		Keyspaces: cfg.Persistence.Keyspaces,
	}

	supervisors := &streamprocessing.Supervisors{
		Streams:      stores,
		States:       states,
		IdleInterval: cfg.IdleInterval,
		Telemetry:    cfg.Telemetry,
		Logger:       cfg.Telemetry.Logger,
	}

	stores.AfterWrite = supervisors.Notify

	host := &services.Host{
		Tenants:     cfg.Tenants,
		Streams:     stores,
		Supervisors: supervisors,
		Validator: &filters.Validator{
			Streams: stores,
			States:  states,
		},
		Logger: cfg.Telemetry.Logger,
	}

	return &Runtime{
		config:        cfg,
		streams:       stores,
		supervisors:   supervisors,
		filters:       &services.Filters{Host: host},
		eventHandlers: &services.EventHandlers{Host: host},
	}, nil
}

// Run serves the runtime's gRPC services on its configured listen address.
//
// It blocks until ctx is canceled or an error occurs.
func (r *Runtime) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", r.config.GRPC.ListenAddress)
	if err != nil {
		return fmt.Errorf("unable to listen: %w", err)
	}
	defer lis.Close()

	return r.Serve(ctx, lis)
}

// Serve serves the runtime's gRPC services on the given listener.
//
// It blocks until ctx is canceled or an error occurs.
func (r *Runtime) Serve(ctx context.Context, lis net.Listener) error {
	server := grpc.NewServer(r.config.GRPC.ServerOptions...)
	grpctransport.RegisterFiltersServer(server, r.filters)
	grpctransport.RegisterEventHandlersServer(server, r.eventHandlers)

	logger := r.config.Telemetry.Logger.With(
		slog.String("listen_address", lis.Addr().String()),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server started")
		return server.Serve(lis)
	})

	g.Go(func() error {
		<-ctx.Done()
		r.stopServer(server, logger)
		return ctx.Err()
	})

	return g.Wait()
}

// stopServer stops the server, waiting for connected clients to disconnect
// until the shutdown timeout elapses.
func (r *Runtime) stopServer(server *grpc.Server, logger *slog.Logger) {
	ctx, cancel := r.shutdownContext()
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info("gRPC server stopped")
	case <-ctx.Done():
		server.Stop()
		logger.Warn("gRPC server stopped before all clients disconnected")
	}
}

// Filters returns the service that connects filters to the runtime.
func (r *Runtime) Filters() *services.Filters {
	return r.filters
}

// EventHandlers returns the service that connects event handlers to the
// runtime.
func (r *Runtime) EventHandlers() *services.EventHandlers {
	return r.eventHandlers
}

// Commit appends an event to the given tenant's event log.
//
// It returns the event as committed, with its sequence number.
func (r *Runtime) Commit(
	ctx context.Context,
	tenant tenancy.ID,
	ev events.CommittedEvent,
) (events.CommittedEvent, error) {
	tenants, err := r.config.Tenants.All(ctx)
	if err != nil {
		return events.CommittedEvent{}, err
	}

	if !slices.Contains(tenants, tenant) {
		return events.CommittedEvent{}, fmt.Errorf("%w: %s", ErrUnknownTenant, tenant)
	}

	store, err := r.streams.ForTenant(tenant)
	if err != nil {
		return events.CommittedEvent{}, err
	}

	return store.CommitToEventLog(ctx, streams.DefaultScope, ev)
}

// Close stops all event processors and releases the runtime's resources.
func (r *Runtime) Close() error {
	r.supervisors.Shutdown()
	return r.config.Close()
}
