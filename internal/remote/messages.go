// Package remote implements event processors whose decisions are made by
// clients connected over a reverse-call connection.
package remote

import (
	"fmt"
	"time"

	"github.com/evsrc/runtime/events"
	"github.com/evsrc/runtime/internal/filters"
	"github.com/evsrc/runtime/internal/processing"
	"github.com/evsrc/runtime/internal/reversecall"
	"github.com/evsrc/runtime/internal/streams"
)

// FilterArguments are the arguments sent by a client that connects a filter.
type FilterArguments struct {
	Filter      streams.ID
	Scope       streams.ScopeID
	Partitioned bool
	Public      bool
}

// Definition returns the definition of the filter, which reads from the
// event log.
func (a FilterArguments) Definition() filters.Definition {
	kind := filters.RemoteFilter
	if a.Public {
		kind = filters.PublicFilter
	}

	return filters.Definition{
		Source:      streams.EventLog,
		Target:      a.Filter,
		Partitioned: a.Partitioned,
		Public:      a.Public,
		Kind:        kind,
	}
}

// HandlerArguments are the arguments sent by a client that connects an event
// handler.
type HandlerArguments struct {
	Handler     processing.EventProcessorID
	Scope       streams.ScopeID
	Types       []events.Artifact
	Partitioned bool
}

// FilterDefinition returns the definition of the type filter that produces
// the handler's source stream from the event log. The stream has the same ID
// as the handler.
func (a HandlerArguments) FilterDefinition() filters.Definition {
	return filters.Definition{
		Source:      streams.EventLog,
		Target:      streams.ID(a.Handler),
		Partitioned: a.Partitioned,
		Kind:        filters.TypeFilter,
		Types:       a.Types,
	}
}

// ProcessRequest asks the client to process an event.
type ProcessRequest struct {
	Event     events.CommittedEvent
	Position  streams.Position
	Partition streams.PartitionID
	Retry     *processing.RetryAttempt `cbor:",omitempty"`
}

// Outcome is the outcome of processing an event.
type Outcome int

const (
	// Succeeded means the event was processed.
	Succeeded Outcome = iota

	// Failed means the event can not be processed.
	Failed

	// Retry means the event should be processed again later.
	Retry
)

// ProcessResponse is the client's response to a [ProcessRequest].
type ProcessResponse struct {
	Outcome      Outcome
	Reason       string              `cbor:",omitempty"`
	RetryTimeout time.Duration       `cbor:",omitempty"`
	IsIncluded   bool                `cbor:",omitempty"`
	Partition    streams.PartitionID `cbor:",omitempty"`
}

// NewProcessResponse returns the response that conveys res.
func NewProcessResponse(res processing.Result) ProcessResponse {
	switch {
	case res.Retry():
		return ProcessResponse{
			Outcome:      Retry,
			Reason:       res.FailureReason(),
			RetryTimeout: res.RetryTimeout(),
		}
	case !res.Succeeded():
		return ProcessResponse{
			Outcome: Failed,
			Reason:  res.FailureReason(),
		}
	default:
		return ProcessResponse{
			Outcome:    Succeeded,
			IsIncluded: res.IsIncluded(),
			Partition:  res.Partition(),
		}
	}
}

// Result returns the processing result conveyed by the response.
func (r ProcessResponse) Result() processing.Result {
	switch r.Outcome {
	case Succeeded:
		if r.IsIncluded {
			return processing.Included(r.Partition)
		}
		return processing.Succeeded()
	case Failed:
		return processing.Failed(r.Reason)
	case Retry:
		return processing.Retry(r.Reason, r.RetryTimeout)
	default:
		return processing.Failed(fmt.Sprintf("client responded with an unknown outcome (%d)", r.Outcome))
	}
}

// FilterDispatcher is the dispatcher of a filter connection.
type FilterDispatcher = reversecall.Dispatcher[FilterArguments, ProcessRequest, ProcessResponse]

// HandlerDispatcher is the dispatcher of an event handler connection.
type HandlerDispatcher = reversecall.Dispatcher[HandlerArguments, ProcessRequest, ProcessResponse]
