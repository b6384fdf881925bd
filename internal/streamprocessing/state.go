package streamprocessing

import (
	"errors"
	"fmt"
	"time"

	"github.com/evsrc/runtime/internal/streams"
	"golang.org/x/exp/maps"
)

// Phase is the phase of a stream processor's state machine.
type Phase int

const (
	// Waiting means there are no more events to process.
	Waiting Phase = iota

	// Processing means the processor is processing events.
	Processing

	// Retrying means the event at the current position failed and is waiting
	// to be retried.
	Retrying

	// Stopping means the processor failed permanently and must not continue
	// without intervention.
	Stopping
)

func (p Phase) String() string {
	switch p {
	case Waiting:
		return "waiting"
	case Processing:
		return "processing"
	case Retrying:
		return "retrying"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

var (
	// ErrFailingPartitionExists is returned when adding a failing partition
	// that is already failing.
	ErrFailingPartitionExists = errors.New("partition is already failing")

	// ErrFailingPartitionNotFound is returned when removing a failing
	// partition that is not failing.
	ErrFailingPartitionNotFound = errors.New("partition is not failing")
)

// State is the persisted state of a stream processor.
type State struct {
	Phase              Phase
	Position           streams.Position
	FailingPartitions  map[streams.PartitionID]FailingPartition
	FailureReason      string
	ProcessingAttempts uint32
	RetryTime          time.Time
}

// FailingPartition is the state of a partition whose events are failing while
// other partitions continue to be processed.
type FailingPartition struct {
	Position           streams.Position
	RetryTime          time.Time
	Reason             string
	ProcessingAttempts uint32
}

// NewState returns the state of a stream processor that has never processed
// an event.
func NewState() State {
	return State{
		Phase:    Waiting,
		Position: streams.Start,
	}
}

// AddFailingPartition returns a copy of s with p marked as failing.
func (s State) AddFailingPartition(id streams.PartitionID, p FailingPartition) (State, error) {
	if _, ok := s.FailingPartitions[id]; ok {
		return s, fmt.Errorf("%w: %q", ErrFailingPartitionExists, id)
	}

	s = s.clone()
	if s.FailingPartitions == nil {
		s.FailingPartitions = map[streams.PartitionID]FailingPartition{}
	}
	s.FailingPartitions[id] = p

	return s, nil
}

// UpdateFailingPartition returns a copy of s with the state of a failing
// partition replaced.
func (s State) UpdateFailingPartition(id streams.PartitionID, p FailingPartition) (State, error) {
	if _, ok := s.FailingPartitions[id]; !ok {
		return s, fmt.Errorf("%w: %q", ErrFailingPartitionNotFound, id)
	}

	s = s.clone()
	s.FailingPartitions[id] = p

	return s, nil
}

// RemoveFailingPartition returns a copy of s with the partition no longer
// failing.
func (s State) RemoveFailingPartition(id streams.PartitionID) (State, error) {
	if _, ok := s.FailingPartitions[id]; !ok {
		return s, fmt.Errorf("%w: %q", ErrFailingPartitionNotFound, id)
	}

	s = s.clone()
	delete(s.FailingPartitions, id)

	return s, nil
}

// IsFailing returns true if the given partition is failing.
func (s State) IsFailing(id streams.PartitionID) bool {
	_, ok := s.FailingPartitions[id]
	return ok
}

func (s State) clone() State {
	if s.FailingPartitions != nil {
		s.FailingPartitions = maps.Clone(s.FailingPartitions)
	}
	return s
}
