package pathkey

import "strings"

// New returns a string key derived from a path.
//
// Elements are joined with a forward slash. Any slashes or backslashes within
// an element are escaped with a backslash, such that distinct paths always
// produce distinct keys.
func New(path ...string) string {
	if len(path) == 0 {
		panic("path must not be empty")
	}

	var w strings.Builder

	for i, elem := range path {
		if elem == "" {
			panic("path element must not be empty")
		}

		if i > 0 {
			w.WriteByte('/')
		}

		for _, r := range elem {
			if r == '/' || r == '\\' {
				w.WriteByte('\\')
			}
			w.WriteRune(r)
		}
	}

	return w.String()
}
