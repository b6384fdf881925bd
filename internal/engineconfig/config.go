// Package engineconfig builds the configuration of a [runtime.Runtime] from
// options and the environment.
package engineconfig

import (
	"errors"
	"time"

	"github.com/evsrc/runtime/internal/telemetry"
	"github.com/evsrc/runtime/persistence/journal"
	"github.com/evsrc/runtime/persistence/kv"
	"github.com/evsrc/runtime/tenancy"
	"google.golang.org/grpc"
)

// Config encapsulates the configuration of a [runtime.Runtime], built by
// applying [runtime.Option] functions.
type Config struct {
	UseEnv          bool
	Telemetry       *telemetry.Provider
	Tenants         tenancy.Tenants
	IdleInterval    time.Duration
	ShutdownTimeout time.Duration

	Persistence struct {
		Journals  journal.Store
		Keyspaces kv.Store
	}

	GRPC struct {
		ServerOptions []grpc.ServerOption
		ListenAddress string
	}

	// Closers are called when the runtime is closed, in reverse order.
	Closers []func() error
}

// New returns a new configuration built by applying the given options.
func New[Option ~func(*Config)](options []Option) (Config, error) {
	c := Config{
		Telemetry: &telemetry.Provider{},
	}

	for _, opt := range options {
		opt(&c)
	}

	if err := c.finalize(); err != nil {
		return Config{}, errors.Join(err, c.Close())
	}

	return c, nil
}

// Close calls each of the configuration's closers.
func (c *Config) Close() error {
	var errs []error

	for i := len(c.Closers) - 1; i >= 0; i-- {
		if err := c.Closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.Closers = nil

	return errors.Join(errs...)
}

func (c *Config) finalize() error {
	c.finalizeTelemetry()

	if err := c.finalizeTenants(); err != nil {
		return err
	}

	if err := c.finalizePersistence(); err != nil {
		return err
	}

	c.finalizeProcessing()
	c.finalizeGRPC()

	return nil
}
