package journal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

// RunTests runs tests that confirm a journal implementation behaves correctly.
func RunTests(
	t *testing.T,
	newStore func(t *testing.T) Store,
) {
	t.Run("type Store", func(t *testing.T) {
		t.Run("func Open()", func(t *testing.T) {
			t.Run("does not perform naive path concatenation", func(t *testing.T) {
				store := newStore(t)

				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()

				prefix := uuid.NewString()
				paths := [][]string{
					{prefix, "foobar"},
					{prefix, "foo", "bar"},
					{prefix, "foob", "ar"},
					{prefix, "foo/bar"},
					{prefix, "foo/", "bar"},
					{prefix, "foo", "/bar"},
				}

				for i, path := range paths {
					func() {
						j, err := store.Open(ctx, path...)
						if err != nil {
							t.Fatal(err)
						}
						defer j.Close()

						expect := []byte(fmt.Sprintf("<record-%d>", i))
						if err := j.Append(ctx, 0, expect); err != nil {
							t.Fatal(err)
						}

						actual, ok, err := j.Get(ctx, 0)
						if err != nil {
							t.Fatal(err)
						}
						if !ok {
							t.Fatal("expected record to exist")
						}

						if !bytes.Equal(expect, actual) {
							t.Fatalf(
								"unexpected record, want %q, got %q",
								string(expect),
								string(actual),
							)
						}
					}()
				}
			})

			t.Run("allows journals to be opened multiple times", func(t *testing.T) {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()

				store := newStore(t)
				name := uuid.NewString()

				j1, err := store.Open(ctx, name)
				if err != nil {
					t.Fatal(err)
				}
				defer j1.Close()

				j2, err := store.Open(ctx, name)
				if err != nil {
					t.Fatal(err)
				}
				defer j2.Close()

				expect := []byte("<record>")
				if err := j1.Append(ctx, 0, expect); err != nil {
					t.Fatal(err)
				}

				actual, ok, err := j2.Get(ctx, 0)
				if err != nil {
					t.Fatal(err)
				}
				if !ok {
					t.Fatal("expected record to exist")
				}

				if !bytes.Equal(expect, actual) {
					t.Fatalf(
						"unexpected record, want %q, got %q",
						string(expect),
						string(actual),
					)
				}
			})
		})
	})

	t.Run("type Journal", func(t *testing.T) {
		t.Run("func Bounds()", func(t *testing.T) {
			t.Run("it returns an empty range if the journal is empty", func(t *testing.T) {
				t.Parallel()

				ctx, j := setup(t, newStore)

				begin, end, err := j.Bounds(ctx)
				if err != nil {
					t.Fatal(err)
				}

				if begin != 0 || end != 0 {
					t.Fatalf("unexpected bounds: got [%d, %d), want [0, 0)", begin, end)
				}
			})

			t.Run("it returns the range of available positions", func(t *testing.T) {
				t.Parallel()

				ctx, j := setup(t, newStore)

				for pos := Position(0); pos < 3; pos++ {
					if err := j.Append(ctx, pos, []byte("<record>")); err != nil {
						t.Fatal(err)
					}
				}

				begin, end, err := j.Bounds(ctx)
				if err != nil {
					t.Fatal(err)
				}

				if begin != 0 || end != 3 {
					t.Fatalf("unexpected bounds: got [%d, %d), want [0, 3)", begin, end)
				}
			})
		})

		t.Run("func Get()", func(t *testing.T) {
			t.Run("it returns false if the position doesn't exist", func(t *testing.T) {
				t.Parallel()

				ctx, j := setup(t, newStore)

				_, ok, err := j.Get(ctx, 1)
				if err != nil {
					t.Fatal(err)
				}
				if ok {
					t.Fatal("returned ok == true for non-existent record")
				}
			})

			t.Run("it returns the record if it exists", func(t *testing.T) {
				t.Parallel()

				ctx, j := setup(t, newStore)

				var expect [][]byte

				// Ensure we test with a position that becomes 2 digits long.
				for i := 0; i < 15; i++ {
					expect = append(
						expect,
						[]byte(fmt.Sprintf("<record-%d>", i)),
					)
				}

				for pos, rec := range expect {
					if err := j.Append(ctx, Position(pos), rec); err != nil {
						t.Fatal(err)
					}
				}

				for pos, rec := range expect {
					actual, ok, err := j.Get(ctx, Position(pos))
					if err != nil {
						t.Fatal(err)
					}
					if !ok {
						t.Fatal("expected record to exist")
					}

					if !bytes.Equal(rec, actual) {
						t.Fatalf(
							"unexpected record, want %q, got %q",
							string(rec),
							string(actual),
						)
					}
				}
			})
		})

		t.Run("func Range()", func(t *testing.T) {
			t.Run("calls the function for each record in the journal, in order", func(t *testing.T) {
				t.Parallel()

				ctx, j := setup(t, newStore)

				var expect [][]byte
				for i := 0; i < 10; i++ {
					rec := []byte(fmt.Sprintf("<record-%d>", i))
					expect = append(expect, rec)

					if err := j.Append(ctx, Position(i), rec); err != nil {
						t.Fatal(err)
					}
				}

				var actual [][]byte
				expectPos := Position(3)

				if err := j.Range(
					ctx,
					3,
					func(ctx context.Context, pos Position, rec []byte) (bool, error) {
						if pos != expectPos {
							return false, fmt.Errorf("unexpected position: got %d, want %d", pos, expectPos)
						}
						expectPos++
						actual = append(actual, rec)
						return true, nil
					},
				); err != nil {
					t.Fatal(err)
				}

				expect = expect[3:]
				if len(actual) != len(expect) {
					t.Fatalf("unexpected record count: got %d, want %d", len(actual), len(expect))
				}

				for i := range expect {
					if !bytes.Equal(expect[i], actual[i]) {
						t.Fatalf(
							"unexpected record, want %q, got %q",
							string(expect[i]),
							string(actual[i]),
						)
					}
				}
			})

			t.Run("it stops iterating if the function returns false", func(t *testing.T) {
				t.Parallel()

				ctx, j := setup(t, newStore)

				for pos := Position(0); pos < 2; pos++ {
					if err := j.Append(ctx, pos, []byte("<record>")); err != nil {
						t.Fatal(err)
					}
				}

				called := false
				if err := j.Range(
					ctx,
					0,
					func(ctx context.Context, pos Position, rec []byte) (bool, error) {
						if called {
							return false, errors.New("unexpected call")
						}

						called = true
						return false, nil
					},
				); err != nil {
					t.Fatal(err)
				}
			})
		})

		t.Run("func Append()", func(t *testing.T) {
			t.Run("it does not return an error if the position doesn't exist", func(t *testing.T) {
				t.Parallel()

				ctx, j := setup(t, newStore)

				if err := j.Append(ctx, 0, []byte("<record>")); err != nil {
					t.Fatal(err)
				}
			})

			t.Run("it returns ErrConflict if the position already exists", func(t *testing.T) {
				t.Parallel()

				ctx, j := setup(t, newStore)

				if err := j.Append(ctx, 0, []byte("<prior>")); err != nil {
					t.Fatal(err)
				}

				expect := []byte("<original>")
				if err := j.Append(ctx, 1, expect); err != nil {
					t.Fatal(err)
				}

				err := j.Append(ctx, 1, []byte("<modified>"))
				if !errors.Is(err, ErrConflict) {
					t.Fatalf("unexpected error: got %v, want %v", err, ErrConflict)
				}

				actual, ok, err := j.Get(ctx, 1)
				if err != nil {
					t.Fatal(err)
				}
				if !ok {
					t.Fatal("expected record to exist")
				}

				if !bytes.Equal(expect, actual) {
					t.Fatalf(
						"unexpected record, want %q, got %q",
						string(expect),
						string(actual),
					)
				}
			})
		})
	})
}

func setup(
	t *testing.T,
	newStore func(t *testing.T) Store,
) (context.Context, Journal) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)

	store := newStore(t)

	j, err := store.Open(ctx, uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := j.Close(); err != nil {
			t.Fatal(err)
		}
	})

	return ctx, j
}
