package engineconfig

import (
	"net"

	"github.com/dogmatiq/ferrite"
)

// DefaultGRPCListenAddress is the address on which the gRPC server listens
// when no other address is configured.
const DefaultGRPCListenAddress = ":50053"

var grpcListenAddress = ferrite.
	String("RUNTIME_GRPC_LISTEN_ADDRESS", "the address on which the gRPC server listens").
	WithDefault(DefaultGRPCListenAddress).
	WithConstraint(
		"must be a network address",
		isNetworkAddress,
	).
	Required()

func isNetworkAddress(v string) bool {
	_, port, err := net.SplitHostPort(v)
	return err == nil && port != ""
}

func (c *Config) finalizeGRPC() {
	if c.GRPC.ListenAddress != "" {
		return
	}

	if c.UseEnv {
		c.GRPC.ListenAddress = grpcListenAddress.Value()
	} else {
		c.GRPC.ListenAddress = DefaultGRPCListenAddress
	}
}
