// Package filters implements filters, event processors that derive streams
// from other streams by deciding which events to include.
package filters

import (
	"context"
	"fmt"

	"github.com/evsrc/runtime/events"
	"github.com/evsrc/runtime/internal/cborx"
	"github.com/evsrc/runtime/internal/streams"
)

// Kind is the kind of a filter.
type Kind int

const (
	// TypeFilter includes events based on their type.
	TypeFilter Kind = iota

	// RemoteFilter includes events based on decisions made by a connected
	// client.
	RemoteFilter

	// PublicFilter is a remote filter whose target stream is public.
	PublicFilter
)

func (k Kind) String() string {
	switch k {
	case TypeFilter:
		return "type filter"
	case RemoteFilter:
		return "remote filter"
	case PublicFilter:
		return "public filter"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Definition describes a filter and the shape of the stream it produces.
//
// A filter is identified by its target stream.
type Definition struct {
	Source      streams.ID
	Target      streams.ID
	Partitioned bool
	Public      bool
	Kind        Kind

	// Types is the set of event types included by a [TypeFilter].
	Types []events.Artifact
}

// ValidateTarget checks that a definition's target stream may be written to
// by a filter.
func ValidateTarget(def Definition) ValidationResult {
	if def.Target == streams.EventLog {
		return Invalid("the event log can not be the target of a filter")
	}

	if def.Target == def.Source {
		return Invalid("filter %s can not write to its own source stream", def.Target)
	}

	return Valid()
}

// GetDefinition returns the persisted definition of the filter that produces
// the given stream.
func GetDefinition(
	ctx context.Context,
	repo streams.DefinitionRepository,
	scope streams.ScopeID,
	target streams.ID,
) (Definition, bool, error) {
	data, ok, err := repo.GetDefinition(ctx, scope, target)
	if !ok || err != nil {
		return Definition{}, false, err
	}

	var def Definition
	if err := cborx.Unmarshal(data, &def); err != nil {
		return Definition{}, false, fmt.Errorf("unable to decode definition of filter %s: %w", target, err)
	}

	return def, true, nil
}

// PersistDefinition persists the definition of a filter, replacing any
// existing definition of the filter with the same target stream.
func PersistDefinition(
	ctx context.Context,
	repo streams.DefinitionRepository,
	scope streams.ScopeID,
	def Definition,
) error {
	data, err := cborx.Marshal(def)
	if err != nil {
		return fmt.Errorf("unable to encode definition of filter %s: %w", def.Target, err)
	}

	return repo.PersistDefinition(ctx, scope, def.Target, data)
}
