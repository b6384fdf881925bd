// Package fsm implements finite state machines whose states are functions.
//
// Each state returns an [Action] that tells the machine what to do next.
package fsm

import (
	"context"
)

// fsm is the internal state of a finite state machine.
type fsm struct {
	ctx            context.Context
	current, final State
	err            error
}

// execute runs s and applies the returned action to m.
func (m *fsm) execute(s State) {
	act := s(m.ctx)
	if act.apply == nil {
		panic("state must return a valid action")
	}
	act.apply(m)
}

// Start runs the state machine until it is stopped or an error occurs.
func Start(ctx context.Context, initial State, options ...Option) error {
	if initial == nil {
		panic("initial state must not be nil")
	}

	m := &fsm{
		ctx:     ctx,
		current: initial,
	}

	for _, opt := range options {
		opt.apply(m)
	}

	for m.current != nil {
		m.execute(m.current)

		if m.current == nil && m.final != nil {
			final := m.final
			m.final = nil
			m.execute(final)
		}
	}

	return m.err
}

// Option is an option that changes the behavior of a state machine.
type Option struct {
	apply func(*fsm)
}

// WithFinalState is an option that sets the final state of a state machine.
//
// The final state is entered once, when the state machine first stops. It may
// perform cleanup, or enter another state to keep the machine running.
func WithFinalState(s State) Option {
	return Option{func(m *fsm) {
		m.final = s
	}}
}
