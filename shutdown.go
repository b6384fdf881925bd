package runtime

import (
	"context"
	"time"

	"github.com/dogmatiq/linger"
)

// DefaultShutdownTimeout is the default amount of time the runtime waits for
// connected clients to disconnect when it is stopped.
const DefaultShutdownTimeout = 15 * time.Second

// shutdownContext returns a context for shutting down a subsystem that has
// stopped because its own context is done.
//
// The returned context is NOT derived from that context, which is expected to
// have already been canceled.
func (r *Runtime) shutdownContext() (context.Context, context.CancelFunc) {
	return linger.ContextWithTimeout(
		context.Background(),
		r.config.ShutdownTimeout,
		DefaultShutdownTimeout,
	)
}
