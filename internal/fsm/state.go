package fsm

import "context"

// State is a function that implements the logic for a single state.
//
// States that need data from the state that entered them are usually methods
// or closures over that data.
type State func(context.Context) Action
