package runtime

import (
	"log/slog"
	"time"

	"github.com/evsrc/runtime/internal/engineconfig"
	"github.com/evsrc/runtime/persistence/journal"
	"github.com/evsrc/runtime/persistence/kv"
	"github.com/evsrc/runtime/tenancy"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// An Option configures the behavior of a [Runtime].
type Option func(*engineconfig.Config)

// WithOptionsFromEnvironment is an [Option] that configures the runtime using
// options specified via environment variables.
//
// Any explicit options passed to [New] take precedence over options from the
// environment.
func WithOptionsFromEnvironment() Option {
	return func(cfg *engineconfig.Config) {
		cfg.UseEnv = true
	}
}

// WithTenants is an [Option] that sets the tenants hosted by the runtime.
func WithTenants(ids ...tenancy.ID) Option {
	if len(ids) == 0 {
		panic("at least one tenant must be provided")
	}

	return func(cfg *engineconfig.Config) {
		cfg.Tenants = tenancy.Static(ids)
	}
}

// WithJournalStore is an [Option] that sets the journal store used by the
// runtime.
func WithJournalStore(s journal.Store) Option {
	return func(cfg *engineconfig.Config) {
		cfg.Persistence.Journals = s
	}
}

// WithKeyValueStore is an [Option] that sets the key/value store used by the
// runtime.
func WithKeyValueStore(s kv.Store) Option {
	return func(cfg *engineconfig.Config) {
		cfg.Persistence.Keyspaces = s
	}
}

// WithTracerProvider is an [Option] that sets the OpenTelemetry tracer
// provider used by the runtime.
func WithTracerProvider(p trace.TracerProvider) Option {
	if p == nil {
		panic("tracer provider must not be nil")
	}

	return func(cfg *engineconfig.Config) {
		cfg.Telemetry.TracerProvider = p
	}
}

// WithMeterProvider is an [Option] that sets the OpenTelemetry meter provider
// used by the runtime.
func WithMeterProvider(p metric.MeterProvider) Option {
	if p == nil {
		panic("meter provider must not be nil")
	}

	return func(cfg *engineconfig.Config) {
		cfg.Telemetry.MeterProvider = p
	}
}

// WithLogger is an [Option] that sets the logger used by the runtime.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic("logger must not be nil")
	}

	return func(cfg *engineconfig.Config) {
		cfg.Telemetry.Logger = l
	}
}

// WithIdleInterval is an [Option] that sets the interval at which idle stream
// processors check for new events.
func WithIdleInterval(d time.Duration) Option {
	if d <= 0 {
		panic("idle interval must be positive")
	}

	return func(cfg *engineconfig.Config) {
		cfg.IdleInterval = d
	}
}

// WithShutdownTimeout is an [Option] that sets how long [Runtime.Run] waits
// for connected clients to disconnect once its context is canceled.
func WithShutdownTimeout(d time.Duration) Option {
	return func(cfg *engineconfig.Config) {
		cfg.ShutdownTimeout = d
	}
}

// WithGRPCListenAddress is an [Option] that sets the network address on which
// the runtime's gRPC server listens.
func WithGRPCListenAddress(addr string) Option {
	return func(cfg *engineconfig.Config) {
		cfg.GRPC.ListenAddress = addr
	}
}

// WithGRPCServerOptions is an [Option] that sets the gRPC options to use when
// starting the runtime's gRPC server.
func WithGRPCServerOptions(options ...grpc.ServerOption) Option {
	return func(cfg *engineconfig.Config) {
		cfg.GRPC.ServerOptions = append(cfg.GRPC.ServerOptions, options...)
	}
}
