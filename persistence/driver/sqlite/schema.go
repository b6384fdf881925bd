package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3" // register "sqlite3" driver
)

// Open opens the SQLite database in the file at the given path, creating it
// if necessary.
//
// SQLite permits a single writer at a time, so the returned pool is limited to
// one connection.
func Open(path string) (*sql.DB, error) {
	q := url.Values{}
	q.Set("_busy_timeout", "5000")
	q.Set("_journal_mode", "WAL")
	q.Set("_foreign_keys", "on")

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", path, q.Encode()))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	return db, nil
}

// CreateSchema creates the SQLite tables required by [KeyValueStore] and
// [JournalStore].
func CreateSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	for _, q := range []string{
		`CREATE TABLE IF NOT EXISTS runtime_kv (
			keyspace TEXT NOT NULL,
			key      BLOB NOT NULL,
			value    BLOB NOT NULL,

			PRIMARY KEY (keyspace, key)
		) WITHOUT ROWID`,
		`CREATE TABLE IF NOT EXISTS runtime_journal (
			path     TEXT NOT NULL,
			position INTEGER NOT NULL,
			record   BLOB NOT NULL,

			PRIMARY KEY (path, position)
		) WITHOUT ROWID`,
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}

	return tx.Commit()
}
