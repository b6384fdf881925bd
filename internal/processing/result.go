// Package processing defines the outcome of processing an event, and the
// interface implemented by event processors.
package processing

import (
	"fmt"
	"time"

	"github.com/evsrc/runtime/internal/streams"
)

type outcome int

const (
	succeeded outcome = iota
	failed
	retry
)

// Result is the outcome of processing a single event.
//
// The zero value is a successful result that does not include the event.
type Result struct {
	outcome   outcome
	reason    string
	timeout   time.Duration
	included  bool
	partition streams.PartitionID
}

// Succeeded returns a result indicating that the event was processed
// successfully.
func Succeeded() Result {
	return Result{}
}

// Failed returns a result indicating that processing failed and must not be
// retried.
func Failed(reason string) Result {
	return Result{outcome: failed, reason: reason}
}

// Retry returns a result indicating that processing failed and should be
// retried after the given timeout.
func Retry(reason string, timeout time.Duration) Result {
	if timeout < 0 {
		timeout = 0
	}
	return Result{outcome: retry, reason: reason, timeout: timeout}
}

// Included returns a successful filter result that includes the event in the
// target stream within the given partition.
func Included(partition streams.PartitionID) Result {
	return Result{included: true, partition: partition}
}

// Excluded returns a successful filter result that excludes the event from the
// target stream.
func Excluded() Result {
	return Result{}
}

// Succeeded returns true if the event was processed successfully.
func (r Result) Succeeded() bool {
	return r.outcome == succeeded
}

// Retry returns true if processing failed and should be retried.
func (r Result) Retry() bool {
	return r.outcome == retry
}

// FailureReason returns the reason that processing failed.
func (r Result) FailureReason() string {
	return r.reason
}

// RetryTimeout returns the amount of time to wait before retrying.
func (r Result) RetryTimeout() time.Duration {
	return r.timeout
}

// IsIncluded returns true if a filter included the event in its target
// stream.
func (r Result) IsIncluded() bool {
	return r.included
}

// Partition returns the partition that a filter assigned to an included event.
func (r Result) Partition() streams.PartitionID {
	return r.partition
}

func (r Result) String() string {
	switch r.outcome {
	case failed:
		return fmt.Sprintf("failed: %s", r.reason)
	case retry:
		return fmt.Sprintf("retry in %s: %s", r.timeout, r.reason)
	}

	if r.included {
		return fmt.Sprintf("included in partition %q", r.partition)
	}

	return "succeeded"
}
