package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/evsrc/runtime/persistence/internal/pathkey"
	"github.com/evsrc/runtime/persistence/journal"
	"golang.org/x/exp/slices"
)

// JournalStore is an implementation of [journal.Store] that stores journals in
// memory.
type JournalStore struct {
	journals sync.Map // map[string]*journalState
}

// Open returns the journal at the given path.
func (s *JournalStore) Open(ctx context.Context, path ...string) (journal.Journal, error) {
	return &journalHandle{
		state: s.state(pathkey.New(path...)),
	}, ctx.Err()
}

func (s *JournalStore) state(key string) *journalState {
	st, ok := s.journals.Load(key)
	if !ok {
		st, _ = s.journals.LoadOrStore(key, &journalState{})
	}
	return st.(*journalState)
}

// journalState stores the underlying state of a journal.
type journalState struct {
	sync.RWMutex

	Records [][]byte

	BeforeAppend func(journal.Position, []byte) error
	AfterAppend  func(journal.Position, []byte) error
}

// journalHandle is an implementation of [journal.Journal] that accesses
// journal state.
type journalHandle struct {
	state *journalState
}

func (h *journalHandle) Bounds(ctx context.Context) (begin, end journal.Position, err error) {
	if h.state == nil {
		panic("journal is closed")
	}

	h.state.RLock()
	defer h.state.RUnlock()

	return 0, journal.Position(len(h.state.Records)), ctx.Err()
}

func (h *journalHandle) Get(ctx context.Context, pos journal.Position) ([]byte, bool, error) {
	if h.state == nil {
		panic("journal is closed")
	}

	h.state.RLock()
	defer h.state.RUnlock()

	if pos >= journal.Position(len(h.state.Records)) {
		return nil, false, ctx.Err()
	}

	return slices.Clone(h.state.Records[pos]), true, ctx.Err()
}

func (h *journalHandle) Range(
	ctx context.Context,
	begin journal.Position,
	fn journal.RangeFunc,
) error {
	if h.state == nil {
		panic("journal is closed")
	}

	h.state.RLock()
	records := h.state.Records
	h.state.RUnlock()

	for pos := begin; pos < journal.Position(len(records)); pos++ {
		ok, err := fn(ctx, pos, slices.Clone(records[pos]))
		if !ok || err != nil {
			return err
		}
	}

	return ctx.Err()
}

func (h *journalHandle) Append(ctx context.Context, end journal.Position, rec []byte) error {
	if h.state == nil {
		panic("journal is closed")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	rec = slices.Clone(rec)

	h.state.Lock()
	defer h.state.Unlock()

	if h.state.BeforeAppend != nil {
		if err := h.state.BeforeAppend(end, rec); err != nil {
			return err
		}
	}

	size := journal.Position(len(h.state.Records))

	switch {
	case end < size:
		return journal.ErrConflict
	case end > size:
		return fmt.Errorf("cannot append at position %d, journal ends at %d", end, size)
	}

	h.state.Records = append(h.state.Records, rec)

	if h.state.AfterAppend != nil {
		return h.state.AfterAppend(end, rec)
	}

	return nil
}

func (h *journalHandle) Close() error {
	if h.state == nil {
		return errors.New("journal is already closed")
	}

	h.state = nil

	return nil
}
