package engineconfig

import (
	"time"

	"github.com/dogmatiq/ferrite"
)

// DefaultIdleInterval is the interval at which idle stream processors check
// for new events when no other interval is configured.
const DefaultIdleInterval = 1 * time.Second

var idleInterval = ferrite.
	Duration("RUNTIME_IDLE_INTERVAL", "the interval at which idle stream processors check for new events").
	WithDefault(DefaultIdleInterval).
	WithMinimum(1 * time.Millisecond).
	Required()

func (c *Config) finalizeProcessing() {
	if c.IdleInterval > 0 {
		return
	}

	if c.UseEnv {
		c.IdleInterval = idleInterval.Value()
	} else {
		c.IdleInterval = DefaultIdleInterval
	}
}
