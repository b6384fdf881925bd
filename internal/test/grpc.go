package test

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// RunGRPCServer starts an in-memory gRPC server and returns a client
// connection to it.
//
// reg is called to register the server's gRPC services.
func RunGRPCServer(
	t *testing.T,
	reg func(grpc.ServiceRegistrar),
) grpc.ClientConnInterface {
	server := grpc.NewServer()
	reg(server)

	lis := bufconn.Listen(1 << 20)
	t.Cleanup(func() {
		lis.Close()
	})

	result := make(chan error, 1)
	go func() {
		result <- server.Serve(lis)
	}()
	t.Cleanup(func() {
		server.Stop()
		if err := <-result; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Error(err)
		}
	})

	conn, err := grpc.Dial(
		"bufconn",
		grpc.WithContextDialer(
			func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			},
		),
		grpc.WithTransportCredentials(
			insecure.NewCredentials(),
		),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}
