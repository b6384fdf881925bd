package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/evsrc/runtime/persistence/internal/pathkey"
	"github.com/evsrc/runtime/persistence/journal"
)

// JournalStore is an implementation of [journal.Store] that persists records
// in an SQLite database.
type JournalStore struct {
	// DB is the SQLite database, as returned by [Open].
	DB *sql.DB
}

// Open returns the journal at the given path.
func (s *JournalStore) Open(ctx context.Context, path ...string) (journal.Journal, error) {
	return &journ{
		Path: pathkey.New(path...),
		DB:   s.DB,
	}, ctx.Err()
}

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
		FROM runtime_journal
		WHERE path = ?`,
		j.Path,
	)

	var b, e int64
	if err := row.Scan(&b, &e); err != nil {
		return 0, 0, err
	}

	return journal.Position(b), journal.Position(e), nil
}

func (j *journ) Get(ctx context.Context, pos journal.Position) ([]byte, bool, error) {
	row := j.DB.QueryRowContext(
		ctx,
		`SELECT record
		FROM runtime_journal
		WHERE path = ?
		AND position = ?`,
		j.Path,
		int64(pos),
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
	var records [][]byte
	expect := int64(begin)

	if err := query(
		ctx,
		j.DB,
		func(rows *sql.Rows) error {
			var (
				pos int64
				rec []byte
			)
			if err := rows.Scan(&pos, &rec); err != nil {
				return err
			}
			if pos != expect {
				return fmt.Errorf("journal is corrupt: expected position %d, got %d", expect, pos)
			}
			expect++
			records = append(records, rec)
			return nil
		},
		`SELECT position, record
		FROM runtime_journal
		WHERE path = ?
		AND position >= ?
		ORDER BY position`,
		j.Path,
		int64(begin),
	); err != nil {
		return err
	}

	for i, rec := range records {
		ok, err := fn(ctx, begin+journal.Position(i), rec)
		if !ok || err != nil {
			return err
		}
	}

	return nil
}

func (j *journ) Append(ctx context.Context, end journal.Position, rec []byte) error {
	res, err := j.DB.ExecContext(
		ctx,
		`INSERT INTO runtime_journal (path, position, record)
		VALUES (?, ?, ?)
		ON CONFLICT (path, position) DO NOTHING`,
		j.Path,
		int64(end),
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
