package instrumentedpersistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/evsrc/runtime/internal/telemetry"
	"github.com/evsrc/runtime/persistence/journal"
)

// JournalStore is a decorator that adds instrumentation to a [journal.Store].
type JournalStore struct {
	Next      journal.Store
	Telemetry *telemetry.Provider
}

// Open returns the journal at the given path.
func (s *JournalStore) Open(ctx context.Context, path ...string) (journal.Journal, error) {
	r := s.Telemetry.Recorder(
		pkg,
		"journal",
		telemetry.String("store", fmt.Sprintf("%T", s.Next)),
		telemetry.String("handle", handleID()),
		telemetry.String("path", strings.Join(path, "/")),
	)

	ctx, span := r.StartSpan(ctx, "open")
	defer span.End()

	next, err := s.Next.Open(ctx, path...)
	if err != nil {
		span.Error("could not open journal", err)
		return nil, err
	}

	j := &journ{
		Next:      next,
		Telemetry: r,
		OpenCount: r.UpDownCounter(
			"open",
			"{journal}",
			"The number of journals that are currently open.",
		),
		ConflictCount: r.Counter(
			"conflicts",
			"{conflict}",
			"The number of appends that failed due to an optimistic concurrency conflict.",
		),
		RecordIO: r.Counter(
			"record.io",
			"{record}",
			"The number of journal records that have been read and written.",
		),
		DataIO: r.Counter(
			"io",
			"By",
			"The cumulative size of the journal records that have been read and written.",
		),
	}

	j.OpenCount(ctx, 1)
	span.Debug("opened journal")

	return j, nil
}

type journ struct {
	Next      journal.Journal
	Telemetry *telemetry.Recorder

	OpenCount     telemetry.Instrument[int64]
	ConflictCount telemetry.Instrument[int64]
	RecordIO      telemetry.Instrument[int64]
	DataIO        telemetry.Instrument[int64]
}

func (j *journ) Bounds(ctx context.Context) (begin, end journal.Position, err error) {
	ctx, span := j.Telemetry.StartSpan(ctx, "bounds")
	defer span.End()

	begin, end, err = j.Next.Bounds(ctx)
	if err != nil {
		span.Error("could not fetch journal bounds", err)
		return 0, 0, err
	}

	span.SetAttributes(
		telemetry.Int("begin", begin),
		telemetry.Int("end", end),
	)
	span.Debug("fetched journal bounds")

	return begin, end, nil
}

func (j *journ) Get(ctx context.Context, pos journal.Position) ([]byte, bool, error) {
	ctx, span := j.Telemetry.StartSpan(
		ctx,
		"get",
		telemetry.Int("position", pos),
	)
	defer span.End()

	rec, ok, err := j.Next.Get(ctx, pos)
	if err != nil {
		span.Error("could not fetch journal record", err)
		return nil, false, err
	}

	if !ok {
		span.Debug("journal record not found")
		return nil, false, nil
	}

	j.RecordIO(ctx, 1, telemetry.ReadDirection)
	j.DataIO(ctx, int64(len(rec)), telemetry.ReadDirection)
	span.Debug("fetched journal record", telemetry.Int("record_size", len(rec)))

	return rec, true, nil
}

func (j *journ) Range(
	ctx context.Context,
	begin journal.Position,
	fn journal.RangeFunc,
) error {
	ctx, span := j.Telemetry.StartSpan(
		ctx,
		"range",
		telemetry.Int("range_begin", begin),
	)
	defer span.End()

	var count int

	err := j.Next.Range(
		ctx,
		begin,
		func(ctx context.Context, pos journal.Position, rec []byte) (bool, error) {
			count++
			j.RecordIO(ctx, 1, telemetry.ReadDirection)
			j.DataIO(ctx, int64(len(rec)), telemetry.ReadDirection)
			return fn(ctx, pos, rec)
		},
	)

	span.SetAttributes(telemetry.Int("records_read", count))

	if err != nil {
		span.Error("could not range over journal records", err)
		return err
	}

	span.Debug("completed reading journal records")

	return nil
}

func (j *journ) Append(ctx context.Context, end journal.Position, rec []byte) error {
	ctx, span := j.Telemetry.StartSpan(
		ctx,
		"append",
		telemetry.Int("position", end),
		telemetry.Int("record_size", len(rec)),
	)
	defer span.End()

	if err := j.Next.Append(ctx, end, rec); err != nil {
		if errors.Is(err, journal.ErrConflict) {
			j.ConflictCount(ctx, 1)
			span.Warn("optimistic concurrency conflict")
		} else {
			span.Error("could not append journal record", err)
		}
		return err
	}

	j.RecordIO(ctx, 1, telemetry.WriteDirection)
	j.DataIO(ctx, int64(len(rec)), telemetry.WriteDirection)
	span.Debug("appended journal record")

	return nil
}

func (j *journ) Close() error {
	ctx, span := j.Telemetry.StartSpan(context.Background(), "close")
	defer span.End()

	if j.Next == nil {
		span.Warn("journal is already closed")
		return nil
	}

	defer func() {
		j.Next = nil
		j.OpenCount(ctx, -1)
	}()

	if err := j.Next.Close(); err != nil {
		span.Error("could not close journal", err)
		return err
	}

	span.Debug("closed journal")

	return nil
}
