package pathkey_test

import (
	"testing"

	. "github.com/evsrc/runtime/persistence/internal/pathkey"
)

func TestNew(t *testing.T) {
	t.Parallel()

	cases := []struct {
		Desc   string
		Path   []string
		Expect string
	}{
		{"single element", []string{"foo"}, "foo"},
		{"multiple elements", []string{"foo", "bar"}, "foo/bar"},
		{"element containing a slash", []string{"foo/bar"}, `foo\/bar`},
		{"element containing a backslash", []string{`foo\bar`}, `foo\\bar`},
	}

	for _, c := range cases {
		c := c

		t.Run(c.Desc, func(t *testing.T) {
			t.Parallel()

			if actual := New(c.Path...); actual != c.Expect {
				t.Fatalf("unexpected key: got %q, want %q", actual, c.Expect)
			}
		})
	}

	t.Run("it panics if the path is empty", func(t *testing.T) {
		t.Parallel()

		defer func() {
			if recover() == nil {
				t.Fatal("expected a panic")
			}
		}()

		New()
	})

	t.Run("it panics if any element is empty", func(t *testing.T) {
		t.Parallel()

		defer func() {
			if recover() == nil {
				t.Fatal("expected a panic")
			}
		}()

		New("foo", "")
	})
}
