package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/evsrc/runtime/internal/filters"
	"github.com/evsrc/runtime/internal/remote"
	"github.com/evsrc/runtime/internal/reversecall"
)

// HandlerStream is the server's side of an event handler connection.
type HandlerStream = reversecall.Stream[remote.HandlerArguments, remote.ProcessRequest, remote.ProcessResponse]

// EventHandlers accepts connections from clients that host event handlers.
//
// Each handler processes a stream that has the same ID as the handler,
// produced from the event log by a type filter.
type EventHandlers struct {
	Host *Host
}

// Connect registers the event handler hosted by the client on the other end
// of stream and runs it until the connection ends.
func (s *EventHandlers) Connect(ctx context.Context, stream HandlerStream) error {
	logger := s.Host.logger()
	d := reversecall.NewDispatcher(stream, logger)

	args, err := d.ReceiveArguments(ctx)
	if err != nil {
		if errors.Is(err, reversecall.ErrNoArguments) {
			return nil
		}
		return err
	}

	def := args.FilterDefinition()
	logger = logger.With(
		slog.String("handler", args.Handler.String()),
		slog.String("scope", args.Scope.String()),
		slog.Bool("partitioned", def.Partitioned),
		slog.Int("types", len(def.Types)),
	)

	if len(args.Types) == 0 {
		return reject(
			ctx,
			d,
			reversecall.Failure{
				ID:     reversecall.InvalidArguments,
				Reason: "event handler must handle at least one event type",
			},
		)
	}

	if res := filters.ValidateTarget(def); !res.Succeeded() {
		return reject(
			ctx,
			d,
			reversecall.Failure{
				ID:     reversecall.InvalidTargetStream,
				Reason: res.FailureReason(),
			},
		)
	}

	r := s.Host.registration(args.Scope, def, logger)
	r.Decider = filters.NewTypeDecider(def)
	r.Handler = remote.Handler{
		ID:     args.Handler,
		Caller: d,
	}

	return serve(ctx, d, r, logger)
}
