package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/evsrc/runtime/persistence/internal/pathkey"
	"github.com/evsrc/runtime/persistence/kv"
)

// KeyValueStore is an implementation of [kv.Store] that stores keyspaces in a
// PostgreSQL database.
type KeyValueStore struct {
	// DB is the PostgreSQL database connection.
	DB *sql.DB
}

// Open returns the keyspace at the given path.
func (s *KeyValueStore) Open(ctx context.Context, path ...string) (kv.Keyspace, error) {
	return &keyspace{
		Name: pathkey.New(path...),
		DB:   s.DB,
	}, ctx.Err()
}

type keyspace struct {
	Name string
	DB   *sql.DB
}

func (ks *keyspace) Get(ctx context.Context, k []byte) ([]byte, error) {
	row := ks.DB.QueryRowContext(
		ctx,
		`SELECT
			value
		FROM runtime.kv
		WHERE keyspace = $1
		AND key = $2`,
		ks.Name,
		k,
	)

	var v []byte
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return v, nil
}

func (ks *keyspace) Has(ctx context.Context, k []byte) (bool, error) {
	row := ks.DB.QueryRowContext(
		ctx,
		`SELECT
			EXISTS (
				SELECT 1
				FROM runtime.kv
				WHERE keyspace = $1
				AND key = $2
			)`,
		ks.Name,
		k,
	)

	var ok bool
	err := row.Scan(&ok)
	return ok, err
}

func (ks *keyspace) Set(ctx context.Context, k, v []byte) error {
	if len(v) == 0 {
		_, err := ks.DB.ExecContext(
			ctx,
			`DELETE FROM runtime.kv
			WHERE keyspace = $1
			AND key = $2`,
			ks.Name,
			k,
		)

		return err
	}

	_, err := ks.DB.ExecContext(
		ctx,
		`INSERT INTO runtime.kv (
			keyspace,
			key,
			value
		) VALUES (
			$1, $2, $3
		) ON CONFLICT (keyspace, key) DO UPDATE SET
			value = excluded.value`,
		ks.Name,
		k,
		v,
	)

	return err
}

func (ks *keyspace) Range(ctx context.Context, fn kv.RangeFunc) error {
	rows, err := ks.DB.QueryContext(
		ctx,
		`SELECT
			key,
			value
		FROM runtime.kv
		WHERE keyspace = $1`,
		ks.Name,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}

		ok, err := fn(ctx, k, v)
		if !ok || err != nil {
			return err
		}
	}

	return rows.Err()
}

func (ks *keyspace) Close() error {
	return nil
}
