// Package reversecall implements reverse calls, where a server sends requests
// to a connected client over a long-lived bidirectional stream and waits for
// the client's responses.
package reversecall

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ClientMessage is a message sent by the client. Exactly one field is set.
//
// The first message sent by the client must carry the arguments of the
// connection. Each subsequent message carries a response to a request.
type ClientMessage[A, R any] struct {
	Arguments *A           `cbor:",omitempty"`
	Response  *Response[R] `cbor:",omitempty"`
}

// ServerMessage is a message sent by the server. Exactly one field is set.
type ServerMessage[Q any] struct {
	Registration *RegistrationResponse `cbor:",omitempty"`
	Request      *Request[Q]           `cbor:",omitempty"`
}

// Request is a request sent to the client.
type Request[Q any] struct {
	CallNumber uint64
	Payload    Q
}

// Response is the client's response to the request with the same call number.
type Response[R any] struct {
	CallNumber uint64
	Payload    R
}

// RegistrationResponse is sent to the client after its arguments have been
// validated. Failure is nil if the connection was accepted.
type RegistrationResponse struct {
	Failure *Failure `cbor:",omitempty"`
}

// Failure describes why a connection was rejected.
type Failure struct {
	ID     uuid.UUID
	Reason string
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s (%s)", f.Reason, f.ID)
}

var (
	// NoRegistrationReceived is the ID of the failure that occurs when the
	// client's first message does not carry arguments.
	NoRegistrationReceived = uuid.MustParse("5fd2d9b7-8d7e-4d29-8b5a-0a3b5d7b2a1e")

	// InvalidTargetStream is the ID of the failure that occurs when the
	// client requests a target stream that can not be written to.
	InvalidTargetStream = uuid.MustParse("c9e3a0f4-9e7b-4b61-9d5c-1e2f4a8b6c3d")

	// RegistrationFailed is the ID of the failure that occurs when the event
	// processor can not be registered.
	RegistrationFailed = uuid.MustParse("2a7c6e91-43b8-4f0d-a5e2-7d9c1b3f8e64")

	// InvalidArguments is the ID of the failure that occurs when the client's
	// arguments are malformed.
	InvalidArguments = uuid.MustParse("8b1f5d3a-6c2e-4a97-b04d-3e5f7a9c1d28")
)

// Stream is a bidirectional stream between the server and a client.
//
// Send and Recv may be called concurrently with each other, but not with
// themselves.
type Stream[A, Q, R any] interface {
	Context() context.Context
	Send(*ServerMessage[Q]) error
	Recv() (*ClientMessage[A, R], error)
}
