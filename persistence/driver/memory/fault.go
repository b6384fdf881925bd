package memory

import (
	"errors"
	"sync"

	"github.com/evsrc/runtime/persistence/internal/pathkey"
	"github.com/evsrc/runtime/persistence/journal"
)

// ErrInjected is the error returned by operations that fail because of a
// fault installed by one of the Fail* functions.
var ErrInjected = errors.New("injected fault")

// FailBeforeKeyspaceSet configures the keyspace at the given path to return
// [ErrInjected] from the next call to Set() with a key/value pair that
// satisfies pred.
//
// The error is returned before the value is stored.
func FailBeforeKeyspaceSet(
	s *KeyValueStore,
	pred func(k, v []byte) bool,
	path ...string,
) {
	st := s.state(pathkey.New(path...))

	st.Lock()
	defer st.Unlock()

	st.BeforeSet = failOnce(pred)
}

// FailAfterKeyspaceSet configures the keyspace at the given path to return
// [ErrInjected] from the next call to Set() with a key/value pair that
// satisfies pred.
//
// The error is returned after the value is stored.
func FailAfterKeyspaceSet(
	s *KeyValueStore,
	pred func(k, v []byte) bool,
	path ...string,
) {
	st := s.state(pathkey.New(path...))

	st.Lock()
	defer st.Unlock()

	st.AfterSet = failOnce(pred)
}

// FailKeyspaceSetAlways configures the keyspace at the given path to return
// [ErrInjected] from every call to Set().
func FailKeyspaceSetAlways(s *KeyValueStore, path ...string) {
	st := s.state(pathkey.New(path...))

	st.Lock()
	defer st.Unlock()

	st.BeforeSet = func([]byte, []byte) error {
		return ErrInjected
	}
}

// FailBeforeJournalAppend configures the journal at the given path to return
// [ErrInjected] from the next call to Append() with a record that satisfies
// pred.
//
// The error is returned before the record is appended.
func FailBeforeJournalAppend(
	s *JournalStore,
	pred func(journal.Position, []byte) bool,
	path ...string,
) {
	st := s.state(pathkey.New(path...))

	st.Lock()
	defer st.Unlock()

	st.BeforeAppend = failOnce(pred)
}

// FailAfterJournalAppend configures the journal at the given path to return
// [ErrInjected] from the next call to Append() with a record that satisfies
// pred.
//
// The error is returned after the record is appended.
func FailAfterJournalAppend(
	s *JournalStore,
	pred func(journal.Position, []byte) bool,
	path ...string,
) {
	st := s.state(pathkey.New(path...))

	st.Lock()
	defer st.Unlock()

	st.AfterAppend = failOnce(pred)
}

func failOnce[A, B any](pred func(A, B) bool) func(A, B) error {
	var once sync.Once

	return func(a A, b B) (err error) {
		if pred(a, b) {
			once.Do(func() {
				err = ErrInjected
			})
		}
		return err
	}
}
