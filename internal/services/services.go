// Package services accepts connections from clients that host filters and
// event handlers.
package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/evsrc/runtime/internal/filters"
	"github.com/evsrc/runtime/internal/registration"
	"github.com/evsrc/runtime/internal/remote"
	"github.com/evsrc/runtime/internal/reversecall"
	"github.com/evsrc/runtime/internal/streamprocessing"
	"github.com/evsrc/runtime/internal/streams"
	"github.com/evsrc/runtime/tenancy"
)

// Host is the infrastructure shared by the connections of every client.
type Host struct {
	Tenants     tenancy.Tenants
	Streams     streams.Stores
	Supervisors *streamprocessing.Supervisors
	Validator   *filters.Validator
	Logger      *slog.Logger
}

func (h *Host) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Host) registration(
	scope streams.ScopeID,
	def filters.Definition,
	logger *slog.Logger,
) *registration.Registration {
	return &registration.Registration{
		Tenants:     h.Tenants,
		Streams:     h.Streams,
		Supervisors: h.Supervisors,
		Validator:   h.Validator,
		Logger:      logger,
		Scope:       scope,
		Filter:      def,
	}
}

// dispatcher is the subset of [reversecall.Dispatcher] used to run a
// registration.
type dispatcher interface {
	Run(context.Context) error
	Accept(context.Context) error
	Reject(context.Context, reversecall.Failure) error
}

// serve registers the client's event processor and runs it until the
// connection ends.
func serve(
	ctx context.Context,
	d dispatcher,
	r *registration.Registration,
	logger *slog.Logger,
) error {
	defer r.Close()

	// Validating a remote filter calls the client, so responses are received
	// for the whole life of the connection.
	result := make(chan error, 1)
	go func() {
		result <- d.Run(ctx)
	}()

	outcome, err := r.Register(ctx)
	if err != nil {
		return err
	}

	if !outcome.Succeeded {
		if err := r.Fail(ctx); err != nil {
			return err
		}

		return ignoreDisconnect(
			d.Reject(
				ctx,
				reversecall.Failure{
					ID:     reversecall.RegistrationFailed,
					Reason: outcome.Reason,
				},
			),
		)
	}

	if err := d.Accept(ctx); err != nil {
		return ignoreDisconnect(err)
	}

	if err := r.Complete(ctx); err != nil {
		return err
	}

	logger.InfoContext(ctx, "client connected")

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	failure := make(chan error, 1)
	go func() {
		failure <- r.Wait(waitCtx)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-result:
		logger.InfoContext(ctx, "client disconnected")
		return ignoreDisconnect(err)
	case err := <-failure:
		if ctx.Err() != nil {
			return nil
		}
		logger.ErrorContext(
			ctx,
			"disconnecting client because its event processor failed",
			slog.String("error", err.Error()),
		)
		return err
	}
}

func reject[A, Q, R any](
	ctx context.Context,
	d *reversecall.Dispatcher[A, Q, R],
	f reversecall.Failure,
) error {
	return ignoreDisconnect(d.Reject(ctx, f))
}

// ignoreDisconnect returns nil if err indicates that the client has gone
// away, as there is nobody to report it to.
func ignoreDisconnect(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, reversecall.ErrDisconnected) {
		return nil
	}
	return err
}

var (
	_ dispatcher = (*remote.FilterDispatcher)(nil)
	_ dispatcher = (*remote.HandlerDispatcher)(nil)
)
