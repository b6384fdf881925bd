package streamprocessing

import (
	"fmt"

	"github.com/evsrc/runtime/internal/processing"
	"github.com/evsrc/runtime/internal/streams"
)

// Key identifies a stream processor within a tenant.
type Key struct {
	Scope          streams.ScopeID
	EventProcessor processing.EventProcessorID
	SourceStream   streams.ID
}

func (k Key) String() string {
	return fmt.Sprintf(
		"%s/%s/%s",
		k.Scope,
		k.EventProcessor,
		k.SourceStream,
	)
}

// bytes returns the binary representation of k.
func (k Key) bytes() []byte {
	data := make([]byte, 0, 48)
	data = append(data, k.Scope[:]...)
	data = append(data, k.EventProcessor[:]...)
	return append(data, k.SourceStream[:]...)
}
