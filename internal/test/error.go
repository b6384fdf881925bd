package test

import "errors"

// ExpectErrorIs fails the test if err is not, and does not wrap, want.
func ExpectErrorIs(t FailerT, err, want error) {
	t.Helper()

	if !errors.Is(err, want) {
		t.Fatalf("unexpected error: got %v, want %v", err, want)
	}
}

// ExpectErrorAs fails the test if err is not, and does not wrap, an error of
// type E. It returns the matched error.
func ExpectErrorAs[E error](t FailerT, err error) E {
	t.Helper()

	var target E
	if !errors.As(err, &target) {
		t.Fatalf("unexpected error: got %v, want an error of type %T", err, target)
	}

	return target
}
