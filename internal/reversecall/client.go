package reversecall

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Serve runs the client side of a reverse-call connection.
//
// It sends args, then responds to each request with the result of handle
// until the connection ends. accepted, if non-nil, is called when the server
// accepts the connection. Requests may arrive before the connection is
// accepted.
//
// If the server rejects the connection the returned error is a [Failure].
func Serve[A, Q, R any](
	ctx context.Context,
	stream ClientStream[A, Q, R],
	args A,
	handle func(context.Context, Q) R,
	accepted func(),
) error {
	defer stream.CloseSend()

	if err := stream.Send(&ClientMessage[A, R]{Arguments: &args}); err != nil {
		return fmt.Errorf("unable to send connection arguments: %w", err)
	}

	for {
		msg, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ctx.Err()
			}
			return err
		}

		switch {
		case msg.Registration != nil:
			if f := msg.Registration.Failure; f != nil {
				return *f
			}
			if accepted != nil {
				accepted()
			}

		case msg.Request != nil:
			res := handle(ctx, msg.Request.Payload)

			if err := stream.Send(
				&ClientMessage[A, R]{
					Response: &Response[R]{
						CallNumber: msg.Request.CallNumber,
						Payload:    res,
					},
				},
			); err != nil {
				return fmt.Errorf("unable to send response: %w", err)
			}
		}
	}
}
