package grpctransport

import (
	"context"
	"errors"

	"github.com/evsrc/runtime/internal/remote"
	"github.com/evsrc/runtime/internal/reversecall"
	"github.com/google/uuid"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorDomain is the domain of the [errdetails.ErrorInfo] attached to
// rejection errors.
const errorDomain = "runtime.processing.v1"

// ProcessFunc processes a request from the server on behalf of a client.
type ProcessFunc func(context.Context, remote.ProcessRequest) remote.ProcessResponse

// ConnectFilter connects a filter to the server and serves its requests
// until ctx is canceled or the connection ends.
//
// accepted, if non-nil, is called when the server accepts the filter. If the
// server rejects it the error is the one returned by [ClientError].
func ConnectFilter(
	ctx context.Context,
	conn grpc.ClientConnInterface,
	args remote.FilterArguments,
	process ProcessFunc,
	accepted func(),
) error {
	return connect(ctx, conn, &FiltersServiceDesc, args, process, accepted)
}

// ConnectEventHandler connects an event handler to the server and serves its
// requests until ctx is canceled or the connection ends.
//
// accepted, if non-nil, is called when the server accepts the handler. If
// the server rejects it the error is the one returned by [ClientError].
func ConnectEventHandler(
	ctx context.Context,
	conn grpc.ClientConnInterface,
	args remote.HandlerArguments,
	process ProcessFunc,
	accepted func(),
) error {
	return connect(ctx, conn, &EventHandlersServiceDesc, args, process, accepted)
}

func connect[A any](
	ctx context.Context,
	conn grpc.ClientConnInterface,
	desc *grpc.ServiceDesc,
	args A,
	process ProcessFunc,
	accepted func(),
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	method := "/" + desc.ServiceName + "/" + desc.Streams[0].StreamName

	stream, err := conn.NewStream(
		ctx,
		&desc.Streams[0],
		method,
		grpc.CallContentSubtype(ContentSubtype),
	)
	if err != nil {
		return err
	}

	err = reversecall.Serve(
		ctx,
		clientStream[A, remote.ProcessRequest, remote.ProcessResponse]{stream},
		args,
		process,
		accepted,
	)

	// gRPC reports the cancellation as a status error, which does not match
	// the context's own error.
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	return ClientError(err)
}

// ClientError converts a rejection returned by the server into a gRPC status
// error with the [codes.FailedPrecondition] code. Any other error is returned
// unchanged.
func ClientError(err error) error {
	var f reversecall.Failure
	if !errors.As(err, &f) {
		return err
	}

	st, detailsErr := status.
		New(codes.FailedPrecondition, f.Reason).
		WithDetails(
			&errdetails.ErrorInfo{
				Reason: "CONNECTION_REJECTED",
				Domain: errorDomain,
				Metadata: map[string]string{
					"failure_id": f.ID.String(),
				},
			},
		)
	if detailsErr != nil {
		return err
	}

	return st.Err()
}

// FailureFromError returns the failure described by an error returned by
// [ClientError].
func FailureFromError(err error) (reversecall.Failure, bool) {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.FailedPrecondition {
		return reversecall.Failure{}, false
	}

	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != errorDomain {
			continue
		}

		id, err := uuid.Parse(info.GetMetadata()["failure_id"])
		if err != nil {
			return reversecall.Failure{}, false
		}

		return reversecall.Failure{
			ID:     id,
			Reason: st.Message(),
		}, true
	}

	return reversecall.Failure{}, false
}

// clientStream adapts a [grpc.ClientStream] to a [reversecall.ClientStream].
type clientStream[A, Q, R any] struct {
	grpc.ClientStream
}

func (s clientStream[A, Q, R]) Send(m *reversecall.ClientMessage[A, R]) error {
	return s.ClientStream.SendMsg(m)
}

func (s clientStream[A, Q, R]) Recv() (*reversecall.ServerMessage[Q], error) {
	m := &reversecall.ServerMessage[Q]{}
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
