package journal

import (
	"context"
)

// Store is a collection of journals.
type Store interface {
	// Open returns the journal at the given path.
	//
	// The path uniquely identifies the journal. It must not be empty. Each
	// element must be a non-empty string.
	Open(ctx context.Context, path ...string) (Journal, error)
}
