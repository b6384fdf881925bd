package instrumentedpersistence

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

const pkg = "github.com/evsrc/runtime/persistence"

var handleCounter atomic.Uint64

// handleID returns a unique identifier for an open journal or keyspace.
//
// The counter component is for easy visual identification by humans, the UUID
// component is for correlation across processes.
func handleID() string {
	return fmt.Sprintf(
		"#%d %s",
		handleCounter.Add(1),
		uuid.NewString(),
	)
}

// isShortASCII returns true if k is a non-empty ASCII string short enough that
// it may be included as a telemetry attribute.
func isShortASCII(k []byte) bool {
	if len(k) == 0 || len(k) > 128 {
		return false
	}

	for _, octet := range k {
		if octet < ' ' || octet > '~' {
			return false
		}
	}

	return true
}
