package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	. "github.com/evsrc/runtime/persistence/driver/sqlite"
	"github.com/evsrc/runtime/persistence/journal"
	"github.com/evsrc/runtime/persistence/kv"
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

func TestJournalStore(t *testing.T) {
	db := setup(t)

	journal.RunTests(
		t,
		func(t *testing.T) journal.Store {
			return &JournalStore{
				DB: db,
			}
		},
	)
}

func setup(t *testing.T) *sql.DB {
	db, err := Open(filepath.Join(t.TempDir(), "runtime.db"))
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatal(err)
		}
	})

	if err := CreateSchema(context.Background(), db); err != nil {
		t.Fatal(err)
	}

	return db
}
