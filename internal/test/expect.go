package test

import (
	"context"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"google.golang.org/protobuf/testing/protocmp"
)

// Expect compares two values and fails the test if they are different.
func Expect[T any](
	t FailerT,
	failMessage string,
	got, want T,
	options ...cmp.Option,
) {
	t.Helper()

	if diff := cmp.Diff(
		want,
		got,
		append(
			[]cmp.Option{
				protocmp.Transform(),
				cmpopts.EquateEmpty(),
				cmpopts.EquateErrors(),
				cmpopts.EquateApproxTime(time.Millisecond),
			},
			options...,
		)...,
	); diff != "" {
		t.Log(failMessage)
		t.Fatal(diff)
	}
}

// ExpectChannelToReceive waits until a value is received from a channel and
// then compares it to the expected value.
func ExpectChannelToReceive[T any](
	t TestingT,
	ch <-chan T,
	want T,
	options ...cmp.Option,
) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatalf("no value received on channel: %s", ctx.Err())
	case got, ok := <-ch:
		if !ok {
			t.Fatal("channel closed while expecting to receive a value")
		}

		Expect(
			t,
			"channel received an unexpected value",
			got,
			want,
			options...,
		)
	}
}

// ExpectChannelToClose waits until a channel is closed.
func ExpectChannelToClose[T any](
	t TestingT,
	ch <-chan T,
) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatalf("channel was not closed: %s", ctx.Err())
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel received a value while expecting channel to be closed")
		}
	}
}

// ExpectChannelWouldBlock expects that reading from the channel would block.
func ExpectChannelWouldBlock[T any](
	t TestingT,
	ch <-chan T,
) {
	t.Helper()

	select {
	default:
		// success! there is no value available on the channel
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel received a value while expecting channel to block")
		}
		t.Fatal("channel closed while expecting channel to block")
	}
}

// ExpectEventually polls cond until it returns true, failing the test if it
// does not do so within [DefaultTimeout].
func ExpectEventually(
	t TestingT,
	failMessage string,
	cond func() bool,
) {
	t.Helper()

	deadline := time.Now().Add(DefaultTimeout)

	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(failMessage)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
