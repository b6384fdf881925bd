package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/evsrc/runtime/persistence/internal/pathkey"
	"github.com/evsrc/runtime/persistence/kv"
)

// KeyValueStore is an implementation of [kv.Store] that stores keyspaces in an
// SQLite database.
type KeyValueStore struct {
	// DB is the SQLite database, as returned by [Open].
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
		`SELECT value
		FROM runtime_kv
		WHERE keyspace = ?
		AND key = ?`,
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
		`SELECT EXISTS (
			SELECT 1
			FROM runtime_kv
			WHERE keyspace = ?
			AND key = ?
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
			`DELETE FROM runtime_kv
			WHERE keyspace = ?
			AND key = ?`,
			ks.Name,
			k,
		)
		return err
	}

	_, err := ks.DB.ExecContext(
		ctx,
		`INSERT INTO runtime_kv (keyspace, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT (keyspace, key) DO UPDATE SET
			value = excluded.value`,
		ks.Name,
		k,
		v,
	)
	return err
}

func (ks *keyspace) Range(ctx context.Context, fn kv.RangeFunc) error {
	type pair struct{ k, v []byte }

	// Rows are buffered before fn is invoked, as the pool's only connection
	// remains busy while the result set is open.
	var pairs []pair

	if err := query(
		ctx,
		ks.DB,
		func(rows *sql.Rows) error {
			var p pair
			if err := rows.Scan(&p.k, &p.v); err != nil {
				return err
			}
			pairs = append(pairs, p)
			return nil
		},
		`SELECT key, value
		FROM runtime_kv
		WHERE keyspace = ?`,
		ks.Name,
	); err != nil {
		return err
	}

	for _, p := range pairs {
		ok, err := fn(ctx, p.k, p.v)
		if !ok || err != nil {
			return err
		}
	}

	return nil
}

func (ks *keyspace) Close() error {
	return nil
}

func query(
	ctx context.Context,
	db *sql.DB,
	scan func(*sql.Rows) error,
	q string,
	args ...any,
) error {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}

	return rows.Err()
}
