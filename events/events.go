// Package events defines the events that have been committed to a tenant's
// event log.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Artifact identifies a versioned artifact, such as an event type.
type Artifact struct {
	ID         uuid.UUID
	Generation uint32
}

// EventSourceID identifies the source of an event, such as an aggregate
// instance.
type EventSourceID string

// ExecutionContext describes the context in which an event was committed.
type ExecutionContext struct {
	Tenant      uuid.UUID
	Correlation uuid.UUID
	Environment string
}

// CommittedEvent is an event that has been committed to the event log.
//
// Committed events are immutable. The content is opaque JSON text.
type CommittedEvent struct {
	EventLogSequenceNumber uint64
	Occurred               time.Time
	EventSource            EventSourceID
	ExecutionContext       ExecutionContext
	Type                   Artifact
	Public                 bool
	Content                string
}

// CommittedAggregateEvent is an event that was applied to an aggregate root.
type CommittedAggregateEvent struct {
	CommittedEvent

	AggregateRoot        Artifact
	AggregateRootVersion uint64
}
