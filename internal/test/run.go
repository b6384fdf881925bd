package test

import (
	"context"
	"errors"
	"testing"
	"time"
)

// shutdownTimeout is how long a background task may take to return after its
// context is canceled.
const shutdownTimeout = 10 * time.Second

// errStopped is the cause used to cancel a task's context when it is stopped
// explicitly.
var errStopped = errors.New("task stopped")

// TaskRunner launches a task in the background.
type TaskRunner struct {
	t  *testing.T
	fn func(ctx context.Context) error
}

// RunInBackground returns a [TaskRunner] that executes fn in its own goroutine.
//
// If fn returns [context.Canceled] because its context was canceled, the
// task's error is the cancellation cause instead.
func RunInBackground(
	t *testing.T,
	fn func(ctx context.Context) error,
) TaskRunner {
	t.Helper()
	return TaskRunner{t, fn}
}

// UntilStopped runs the task until the test ends or it is stopped explicitly.
// The task's result is not checked.
func (r TaskRunner) UntilStopped() *Task {
	r.t.Helper()
	return r.start()
}

// BeforeTestEnds runs the task and fails the test if it has not returned
// successfully by the time the test ends.
func (r TaskRunner) BeforeTestEnds() *Task {
	r.t.Helper()

	task := r.start()

	r.t.Cleanup(func() {
		r.t.Helper()

		if !task.returned() {
			r.t.Error("background task did not return before the test ended")
		} else if task.err != nil {
			r.t.Errorf("background task returned an unexpected error: %s", task.err)
		}
	})

	return task
}

// UntilTestEnds runs the task and fails the test if it returns before the
// test ends, unless it was stopped explicitly.
func (r TaskRunner) UntilTestEnds() *Task {
	r.t.Helper()

	task := r.start()

	r.t.Cleanup(func() {
		r.t.Helper()

		if task.returned() {
			switch task.err {
			case errStopped:
				r.t.Log("background task was stopped explicitly before the test ended")
			case nil:
				r.t.Error("background task returned before the test ended")
			default:
				r.t.Errorf("background task returned an error before the test ended: %s", task.err)
			}
			return
		}

		if err := task.stop(); err != errStopped {
			r.t.Errorf("background task returned an unexpected error: %v", err)
		}
	})

	return task
}

func (r TaskRunner) start() *Task {
	r.t.Helper()

	ctx, cancel := context.WithCancelCause(context.Background())

	task := &Task{
		t:      r.t,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(task.done)

		err := r.fn(ctx)
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			err = context.Cause(ctx)
		}

		task.err = err
	}()

	r.t.Cleanup(func() {
		r.t.Helper()

		cancel(nil)

		if !task.wait() {
			r.t.Errorf("background task's context was canceled but it did not return within %s", shutdownTimeout)
		}
	})

	return task
}

// Task is a function running in the background.
type Task struct {
	t      TestingT
	cancel context.CancelCauseFunc
	done   chan struct{}
	err    error
}

// Stop cancels the context passed to the function without waiting for it to
// return.
func (t *Task) Stop() {
	t.cancel(errStopped)
}

// StopAndWait cancels the context passed to the function and waits for it to
// return. The test fails if it returns any error other than the one caused by
// stopping it.
func (t *Task) StopAndWait() {
	t.t.Helper()

	t.cancel(errStopped)

	if !t.wait() {
		t.t.Fatalf("background task was stopped but did not return within %s", shutdownTimeout)
	}

	if t.err != errStopped {
		t.t.Fatalf("background task returned an unexpected error: %v", t.err)
	}
}

// Done returns a channel that is closed when the function returns.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the error returned by the function. The test fails if the
// function has not yet returned.
func (t *Task) Err() error {
	t.t.Helper()

	if !t.returned() {
		t.t.Fatal("background task has not returned")
	}

	return t.err
}

func (t *Task) stop() error {
	t.cancel(errStopped)
	t.wait()
	return t.err
}

func (t *Task) wait() bool {
	select {
	case <-t.done:
		return true
	case <-time.After(shutdownTimeout):
		return false
	}
}

func (t *Task) returned() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
