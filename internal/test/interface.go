package test

import (
	"testing"

	"pgregory.net/rapid"
)

// TestingT is the subset of [testing.TB] needed by helpers that register
// cleanup functions.
type TestingT interface {
	FailerT
	Cleanup(func())
}

// FailerT is the subset of [testing.TB] needed by helpers that only report
// failures. Both [testing.TB] and [rapid.T] satisfy it, allowing helpers to
// be used inside property tests.
type FailerT interface {
	Helper()
	Log(...any)
	Logf(string, ...any)
	Fatal(...any)
	Fatalf(string, ...any)
	Error(...any)
	Errorf(string, ...any)
}

var (
	_ TestingT = (testing.TB)(nil)
	_ FailerT  = (*rapid.T)(nil)
)
