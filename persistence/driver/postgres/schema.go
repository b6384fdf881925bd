package postgres

import (
	"context"
	"database/sql"
)

// CreateSchema creates the PostgreSQL schema elements required by
// [KeyValueStore] and [JournalStore].
//
// It is safe to call CreateSchema against a database that already contains
// the schema.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	for _, q := range []string{
		`CREATE SCHEMA IF NOT EXISTS runtime`,
		`CREATE TABLE IF NOT EXISTS runtime.kv (
			keyspace TEXT NOT NULL,
			key      BYTEA NOT NULL,
			value    BYTEA NOT NULL,

			PRIMARY KEY (keyspace, key)
		)`,
		`CREATE TABLE IF NOT EXISTS runtime.journal (
			path     TEXT NOT NULL,
			position BIGINT NOT NULL,
			record   BYTEA NOT NULL,

			PRIMARY KEY (path, position)
		)`,
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DropSchema removes the PostgreSQL schema elements created by
// [CreateSchema].
func DropSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS runtime CASCADE`)
	return err
}
