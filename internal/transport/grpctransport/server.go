package grpctransport

import (
	"context"

	"github.com/evsrc/runtime/internal/remote"
	"github.com/evsrc/runtime/internal/reversecall"
	"github.com/evsrc/runtime/internal/services"
	"google.golang.org/grpc"
)

// FiltersServer is the server API for the runtime.processing.v1.Filters
// service.
type FiltersServer interface {
	Connect(context.Context, services.FilterStream) error
}

// EventHandlersServer is the server API for the
// runtime.processing.v1.EventHandlers service.
type EventHandlersServer interface {
	Connect(context.Context, services.HandlerStream) error
}

// FiltersServiceDesc is the descriptor of the runtime.processing.v1.Filters
// service.
var FiltersServiceDesc = grpc.ServiceDesc{
	ServiceName: "runtime.processing.v1.Filters",
	HandlerType: (*FiltersServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			ServerStreams: true,
			ClientStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(FiltersServer).Connect(
					stream.Context(),
					serverStream[remote.FilterArguments, remote.ProcessRequest, remote.ProcessResponse]{stream},
				)
			},
		},
	},
	Metadata: "runtime/processing/v1/filters",
}

// EventHandlersServiceDesc is the descriptor of the
// runtime.processing.v1.EventHandlers service.
var EventHandlersServiceDesc = grpc.ServiceDesc{
	ServiceName: "runtime.processing.v1.EventHandlers",
	HandlerType: (*EventHandlersServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			ServerStreams: true,
			ClientStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(EventHandlersServer).Connect(
					stream.Context(),
					serverStream[remote.HandlerArguments, remote.ProcessRequest, remote.ProcessResponse]{stream},
				)
			},
		},
	},
	Metadata: "runtime/processing/v1/eventhandlers",
}

// RegisterFiltersServer registers srv with s.
func RegisterFiltersServer(s grpc.ServiceRegistrar, srv FiltersServer) {
	s.RegisterService(&FiltersServiceDesc, srv)
}

// RegisterEventHandlersServer registers srv with s.
func RegisterEventHandlersServer(s grpc.ServiceRegistrar, srv EventHandlersServer) {
	s.RegisterService(&EventHandlersServiceDesc, srv)
}

// serverStream adapts a [grpc.ServerStream] to a [reversecall.Stream].
type serverStream[A, Q, R any] struct {
	grpc.ServerStream
}

func (s serverStream[A, Q, R]) Send(m *reversecall.ServerMessage[Q]) error {
	return s.ServerStream.SendMsg(m)
}

func (s serverStream[A, Q, R]) Recv() (*reversecall.ClientMessage[A, R], error) {
	m := &reversecall.ClientMessage[A, R]{}
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
