// Package tenancy identifies the tenants hosted by the runtime.
package tenancy

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// ID uniquely identifies a tenant.
type ID uuid.UUID

// String returns the canonical UUID representation of the ID.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Parse parses a tenant ID from its string representation.
func Parse(s string) (ID, error) {
	id, err := uuid.Parse(s)
	return ID(id), err
}

// Tenants is a source of the tenants hosted by the runtime.
type Tenants interface {
	// All returns the IDs of all tenants.
	All(ctx context.Context) ([]ID, error)
}

// Static is an implementation of [Tenants] with a fixed set of tenants.
type Static []ID

// All returns the IDs of all tenants.
func (s Static) All(context.Context) ([]ID, error) {
	return slices.Clone(s), nil
}
