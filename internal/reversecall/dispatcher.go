package reversecall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/evsrc/runtime/internal/future"
	"github.com/evsrc/runtime/internal/signaling"
)

var (
	// ErrDisconnected is returned by [Dispatcher.Call] when the connection is
	// lost, or the call is canceled, before the client responds.
	ErrDisconnected = errors.New("client disconnected")

	// ErrNoArguments is returned by [Dispatcher.ReceiveArguments] when the
	// client's first message does not carry arguments.
	ErrNoArguments = errors.New("client did not send connection arguments")

	// ErrAlreadyResponded is returned when the registration response is sent
	// more than once.
	ErrAlreadyResponded = errors.New("registration response has already been sent")
)

// Dispatcher manages the server side of a reverse-call connection.
//
// The arguments are received first, via [Dispatcher.ReceiveArguments]. After
// that, requests may be sent with [Dispatcher.Call] as long as
// [Dispatcher.Run] is running to receive the responses. At most one call is
// outstanding at any time.
type Dispatcher[A, Q, R any] struct {
	stream Stream[A, Q, R]
	logger *slog.Logger

	slot         chan struct{}
	disconnected signaling.Latch
	arguments    signaling.Latch

	sendM sync.Mutex

	m          sync.Mutex
	responded  bool
	callNumber uint64
	pending    *call[R]
}

type call[R any] struct {
	Number   uint64
	Resolver future.FailableResolver[R]
}

// NewDispatcher returns a dispatcher for the given stream.
func NewDispatcher[A, Q, R any](
	stream Stream[A, Q, R],
	logger *slog.Logger,
) *Dispatcher[A, Q, R] {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher[A, Q, R]{
		stream: stream,
		logger: logger,
		slot:   make(chan struct{}, 1),
	}
}

// ReceiveArguments receives the arguments of the connection.
//
// If the client's first message does not carry arguments the connection is
// rejected with a [NoRegistrationReceived] failure and [ErrNoArguments] is
// returned.
func (d *Dispatcher[A, Q, R]) ReceiveArguments(ctx context.Context) (A, error) {
	var zero A

	msg, err := d.stream.Recv()
	if err != nil {
		d.disconnect()
		return zero, fmt.Errorf("unable to receive connection arguments: %w", err)
	}

	if msg.Arguments == nil {
		if err := d.Reject(
			ctx,
			Failure{
				ID:     NoRegistrationReceived,
				Reason: "the first message must contain the connection arguments",
			},
		); err != nil {
			return zero, err
		}
		return zero, ErrNoArguments
	}

	d.arguments.Signal()

	return *msg.Arguments, nil
}

// Accept informs the client that the connection has been accepted.
func (d *Dispatcher[A, Q, R]) Accept(ctx context.Context) error {
	return d.respond(ctx, &RegistrationResponse{})
}

// Reject informs the client that the connection has been rejected. No further
// calls can be made.
func (d *Dispatcher[A, Q, R]) Reject(ctx context.Context, f Failure) error {
	defer d.disconnect()

	d.logger.WarnContext(
		ctx,
		"reverse-call connection rejected",
		slog.String("failure_id", f.ID.String()),
		slog.String("reason", f.Reason),
	)

	return d.respond(ctx, &RegistrationResponse{Failure: &f})
}

func (d *Dispatcher[A, Q, R]) respond(ctx context.Context, res *RegistrationResponse) error {
	d.m.Lock()
	if d.responded {
		d.m.Unlock()
		return ErrAlreadyResponded
	}
	d.responded = true
	d.m.Unlock()

	if err := d.send(ctx, &ServerMessage[Q]{Registration: res}); err != nil {
		return fmt.Errorf("unable to send registration response: %w", err)
	}

	return nil
}

// Run receives responses from the client until the connection ends.
//
// Canceling ctx fails any outstanding call with [ErrDisconnected]
// immediately, but Run itself does not return until the stream's Recv method
// does. gRPC server streams end when their handler returns. It returns nil if
// the client closed the connection.
func (d *Dispatcher[A, Q, R]) Run(ctx context.Context) error {
	defer d.disconnect()

	stop := context.AfterFunc(ctx, d.disconnect)
	defer stop()

	for {
		msg, err := d.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if msg.Response == nil {
			d.logger.WarnContext(ctx, "ignoring reverse-call message that does not contain a response")
			continue
		}

		d.resolve(ctx, msg.Response)
	}
}

func (d *Dispatcher[A, Q, R]) resolve(ctx context.Context, res *Response[R]) {
	d.m.Lock()
	c := d.pending
	if c != nil && c.Number == res.CallNumber {
		d.pending = nil
	} else {
		c = nil
	}
	d.m.Unlock()

	if c == nil {
		d.logger.WarnContext(
			ctx,
			"ignoring reverse-call response with unexpected call number",
			slog.Uint64("call_number", res.CallNumber),
		)
		return
	}

	c.Resolver.TrySet(res.Payload)
}

// Call sends a request to the client and waits for its response.
//
// It returns an error wrapping [ErrDisconnected] if the connection is lost or
// ctx is canceled before the response is received.
func (d *Dispatcher[A, Q, R]) Call(ctx context.Context, req Q) (R, error) {
	var zero R

	if !d.arguments.IsSignaled() {
		panic("reverse calls can not be made before the connection arguments are received")
	}

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %w", ErrDisconnected, ctx.Err())
	case <-d.disconnected.Signaled():
		return zero, ErrDisconnected
	case d.slot <- struct{}{}:
		defer func() { <-d.slot }()
	}

	fut, resolver := future.NewFailable[R]()

	d.m.Lock()
	d.callNumber++
	c := &call[R]{d.callNumber, resolver}
	d.pending = c
	d.m.Unlock()

	defer func() {
		d.m.Lock()
		if d.pending == c {
			d.pending = nil
		}
		d.m.Unlock()
	}()

	// Checked after the call is pending so that a concurrent disconnect
	// either fails it or is observed here.
	if d.disconnected.IsSignaled() {
		return zero, ErrDisconnected
	}

	if err := d.send(
		ctx,
		&ServerMessage[Q]{
			Request: &Request[Q]{
				CallNumber: c.Number,
				Payload:    req,
			},
		},
	); err != nil {
		d.disconnect()
		return zero, fmt.Errorf("%w: %w", ErrDisconnected, err)
	}

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %w", ErrDisconnected, ctx.Err())
	case <-fut.Ready():
		return fut.Get()
	}
}

// Disconnected returns a channel that is closed when the connection ends.
func (d *Dispatcher[A, Q, R]) Disconnected() <-chan struct{} {
	return d.disconnected.Signaled()
}

func (d *Dispatcher[A, Q, R]) send(ctx context.Context, msg *ServerMessage[Q]) error {
	d.sendM.Lock()
	defer d.sendM.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	return d.stream.Send(msg)
}

// disconnect marks the connection as ended and fails any outstanding call.
func (d *Dispatcher[A, Q, R]) disconnect() {
	d.disconnected.Signal()

	d.m.Lock()
	c := d.pending
	d.pending = nil
	d.m.Unlock()

	if c != nil {
		c.Resolver.TryErr(ErrDisconnected)
	}
}
