package journalstreams

import (
	"context"
	"fmt"

	"github.com/evsrc/runtime/internal/streams"
	"github.com/evsrc/runtime/persistence/kv"
)

func (s *store) keyspace(ctx context.Context) (kv.Keyspace, error) {
	ks, err := s.stores.Keyspaces.Open(ctx, "stream-definitions", s.tenant.String())
	if err != nil {
		return nil, fmt.Errorf("unable to open stream definitions: %w", err)
	}
	return ks, nil
}

func (s *store) GetDefinition(
	ctx context.Context,
	scope streams.ScopeID,
	stream streams.ID,
) ([]byte, bool, error) {
	ks, err := s.keyspace(ctx)
	if err != nil {
		return nil, false, err
	}
	defer ks.Close()

	def, err := ks.Get(ctx, definitionKey(scope, stream))
	if err != nil {
		return nil, false, fmt.Errorf("unable to get definition of stream %s: %w", stream, err)
	}

	return def, len(def) != 0, nil
}

func (s *store) PersistDefinition(
	ctx context.Context,
	scope streams.ScopeID,
	stream streams.ID,
	def []byte,
) error {
	if len(def) == 0 {
		panic("stream definition must not be empty")
	}

	ks, err := s.keyspace(ctx)
	if err != nil {
		return err
	}
	defer ks.Close()

	if err := ks.Set(ctx, definitionKey(scope, stream), def); err != nil {
		return fmt.Errorf("unable to persist definition of stream %s: %w", stream, err)
	}

	return nil
}

func definitionKey(scope streams.ScopeID, stream streams.ID) []byte {
	k := make([]byte, 0, 32)
	k = append(k, scope[:]...)
	return append(k, stream[:]...)
}
