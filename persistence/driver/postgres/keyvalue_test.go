package postgres_test

import (
	"testing"

	"github.com/evsrc/runtime/persistence/kv"
	. "github.com/evsrc/runtime/persistence/driver/postgres"
)

func TestKeyValueStore(t *testing.T) {
	db := setup(t)

	kv.RunTests(
		t,
		func(t *testing.T) kv.Store {
			return &KeyValueStore{
				DB: db,
			}
		},
	)
}
