package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/evsrc/runtime/persistence/internal/pathkey"
	"github.com/evsrc/runtime/persistence/journal"
)

// JournalStore is an implementation of [journal.Store] that persists records
// in a PostgreSQL table.
type JournalStore struct {
	// DB is the PostgreSQL database connection.
	DB *sql.DB
}

// Open returns the journal at the given path.
func (s *JournalStore) Open(ctx context.Context, path ...string) (journal.Journal, error) {
	return &journ{
		Path: pathkey.New(path...),
		DB:   s.DB,
	}, ctx.Err()
}

// journ is an implementation of [journal.Journal] that stores records in a
// PostgreSQL table.
type journ struct {
	Path string
	DB   *sql.DB
}

func (j *journ) Bounds(ctx context.Context) (begin, end journal.Position, err error) {
	row := j.DB.QueryRowContext(
		ctx,
		`SELECT
			COALESCE(MIN(position), 0),
			COALESCE(MAX(position) + 1, 0)
		FROM runtime.journal
		WHERE path = $1`,
		j.Path,
	)

	err = row.Scan(&begin, &end)
	return begin, end, err
}

func (j *journ) Get(ctx context.Context, pos journal.Position) ([]byte, bool, error) {
	row := j.DB.QueryRowContext(
		ctx,
		`SELECT
			record
		FROM runtime.journal
		WHERE path = $1
		AND position = $2`,
		j.Path,
		pos,
	)

	var rec []byte
	if err := row.Scan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return rec, true, nil
}

func (j *journ) Range(
	ctx context.Context,
	begin journal.Position,
	fn journal.RangeFunc,
) error {
	rows, err := j.DB.QueryContext(
		ctx,
		`SELECT
			position,
			record
		FROM runtime.journal
		WHERE path = $1
		AND position >= $2
		ORDER BY position`,
		j.Path,
		begin,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	expect := begin

	for rows.Next() {
		var (
			pos journal.Position
			rec []byte
		)
		if err := rows.Scan(&pos, &rec); err != nil {
			return err
		}

		if pos != expect {
			return fmt.Errorf("journal is corrupt: expected position %d, got %d", expect, pos)
		}
		expect++

		ok, err := fn(ctx, pos, rec)
		if !ok || err != nil {
			return err
		}
	}

	return rows.Err()
}

func (j *journ) Append(ctx context.Context, end journal.Position, rec []byte) error {
	res, err := j.DB.ExecContext(
		ctx,
		`INSERT INTO runtime.journal (
			path,
			position,
			record
		) VALUES (
			$1, $2, $3
		) ON CONFLICT (path, position) DO NOTHING`,
		j.Path,
		end,
		rec,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return journal.ErrConflict
	}

	return nil
}

func (j *journ) Close() error {
	return nil
}
