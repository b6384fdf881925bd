package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/evsrc/runtime/internal/filters"
	"github.com/evsrc/runtime/internal/remote"
	"github.com/evsrc/runtime/internal/reversecall"
)

// FilterStream is the server's side of a filter connection.
type FilterStream = reversecall.Stream[remote.FilterArguments, remote.ProcessRequest, remote.ProcessResponse]

// Filters accepts connections from clients that host filters.
type Filters struct {
	Host *Host
}

// Connect registers the filter hosted by the client on the other end of
// stream and runs it until the connection ends.
func (s *Filters) Connect(ctx context.Context, stream FilterStream) error {
	logger := s.Host.logger()
	d := reversecall.NewDispatcher(stream, logger)

	args, err := d.ReceiveArguments(ctx)
	if err != nil {
		if errors.Is(err, reversecall.ErrNoArguments) {
			return nil
		}
		return err
	}

	def := args.Definition()
	logger = logger.With(
		slog.String("filter", def.Target.String()),
		slog.String("scope", args.Scope.String()),
		slog.Bool("partitioned", def.Partitioned),
		slog.Bool("public", def.Public),
	)

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
	r.Decider = remote.Filter{Caller: d}

	return serve(ctx, d, r, logger)
}
