package reversecall

import (
	"context"
	"io"
)

// ClientStream is the client's side of a bidirectional stream.
type ClientStream[A, Q, R any] interface {
	Context() context.Context
	Send(*ClientMessage[A, R]) error
	Recv() (*ServerMessage[Q], error)
	CloseSend() error
}

// Pipe is an in-memory connection between a client and a server.
type Pipe[A, Q, R any] struct {
	ctx    context.Context
	cancel context.CancelFunc

	toServer   chan *ClientMessage[A, R]
	toClient   chan *ServerMessage[Q]
	clientDone chan struct{}
}

// NewPipe returns a new in-memory connection that ends when ctx is canceled
// or [Pipe.Close] is called.
func NewPipe[A, Q, R any](ctx context.Context) *Pipe[A, Q, R] {
	ctx, cancel := context.WithCancel(ctx)

	return &Pipe[A, Q, R]{
		ctx:        ctx,
		cancel:     cancel,
		toServer:   make(chan *ClientMessage[A, R]),
		toClient:   make(chan *ServerMessage[Q]),
		clientDone: make(chan struct{}),
	}
}

// Server returns the server's side of the connection.
func (p *Pipe[A, Q, R]) Server() Stream[A, Q, R] {
	return pipeServer[A, Q, R]{p}
}

// Client returns the client's side of the connection.
func (p *Pipe[A, Q, R]) Client() ClientStream[A, Q, R] {
	return &pipeClient[A, Q, R]{p: p}
}

// Close ends the connection.
func (p *Pipe[A, Q, R]) Close() {
	p.cancel()
}

type pipeServer[A, Q, R any] struct {
	p *Pipe[A, Q, R]
}

func (s pipeServer[A, Q, R]) Context() context.Context {
	return s.p.ctx
}

func (s pipeServer[A, Q, R]) Send(msg *ServerMessage[Q]) error {
	select {
	case <-s.p.ctx.Done():
		return io.EOF
	case s.p.toClient <- msg:
		return nil
	}
}

func (s pipeServer[A, Q, R]) Recv() (*ClientMessage[A, R], error) {
	select {
	case <-s.p.ctx.Done():
		return nil, io.EOF
	case <-s.p.clientDone:
		return nil, io.EOF
	case msg := <-s.p.toServer:
		return msg, nil
	}
}

type pipeClient[A, Q, R any] struct {
	p      *Pipe[A, Q, R]
	closed bool
}

func (c *pipeClient[A, Q, R]) Context() context.Context {
	return c.p.ctx
}

func (c *pipeClient[A, Q, R]) Send(msg *ClientMessage[A, R]) error {
	if c.closed {
		return io.ErrClosedPipe
	}

	select {
	case <-c.p.ctx.Done():
		return io.EOF
	case c.p.toServer <- msg:
		return nil
	}
}

func (c *pipeClient[A, Q, R]) Recv() (*ServerMessage[Q], error) {
	select {
	case <-c.p.ctx.Done():
		return nil, io.EOF
	case msg := <-c.p.toClient:
		return msg, nil
	}
}

func (c *pipeClient[A, Q, R]) CloseSend() error {
	if !c.closed {
		c.closed = true
		close(c.p.clientDone)
	}
	return nil
}
