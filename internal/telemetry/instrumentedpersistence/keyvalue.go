package instrumentedpersistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/evsrc/runtime/internal/telemetry"
	"github.com/evsrc/runtime/persistence/kv"
)

// KeyValueStore is a decorator that adds instrumentation to a [kv.Store].
type KeyValueStore struct {
	Next      kv.Store
	Telemetry *telemetry.Provider
}

// Open returns the keyspace at the given path.
func (s *KeyValueStore) Open(ctx context.Context, path ...string) (kv.Keyspace, error) {
	r := s.Telemetry.Recorder(
		pkg,
		"keyspace",
		telemetry.String("store", fmt.Sprintf("%T", s.Next)),
		telemetry.String("handle", handleID()),
		telemetry.String("path", strings.Join(path, "/")),
	)

	ctx, span := r.StartSpan(ctx, "open")
	defer span.End()

	next, err := s.Next.Open(ctx, path...)
	if err != nil {
		span.Error("could not open keyspace", err)
		return nil, err
	}

	ks := &keyspace{
		Next:      next,
		Telemetry: r,
		OpenCount: r.UpDownCounter(
			"open",
			"{keyspace}",
			"The number of keyspaces that are currently open.",
		),
		PairIO: r.Counter(
			"pair.io",
			"{pair}",
			"The number of key/value pairs that have been read and written.",
		),
		DataIO: r.Counter(
			"io",
			"By",
			"The cumulative size of the keys and values that have been read and written.",
		),
	}

	ks.OpenCount(ctx, 1)
	span.Debug("opened keyspace")

	return ks, nil
}

type keyspace struct {
	Next      kv.Keyspace
	Telemetry *telemetry.Recorder

	OpenCount telemetry.Instrument[int64]
	PairIO    telemetry.Instrument[int64]
	DataIO    telemetry.Instrument[int64]
}

func (ks *keyspace) Get(ctx context.Context, k []byte) ([]byte, error) {
	ctx, span := ks.Telemetry.StartSpan(
		ctx,
		"get",
		telemetry.If(isShortASCII(k), telemetry.String("key", string(k))),
		telemetry.Int("key_size", len(k)),
	)
	defer span.End()

	v, err := ks.Next.Get(ctx, k)
	if err != nil {
		span.Error("could not fetch value", err)
		return nil, err
	}

	span.SetAttributes(telemetry.Int("value_size", len(v)))

	ks.PairIO(ctx, 1, telemetry.ReadDirection)
	ks.DataIO(ctx, int64(len(k)+len(v)), telemetry.ReadDirection)

	span.Debug("fetched value")

	return v, nil
}

func (ks *keyspace) Has(ctx context.Context, k []byte) (bool, error) {
	ctx, span := ks.Telemetry.StartSpan(
		ctx,
		"has",
		telemetry.If(isShortASCII(k), telemetry.String("key", string(k))),
		telemetry.Int("key_size", len(k)),
	)
	defer span.End()

	ok, err := ks.Next.Has(ctx, k)
	if err != nil {
		span.Error("could not check for presence of key", err)
		return false, err
	}

	span.SetAttributes(telemetry.Bool("key_present", ok))
	ks.PairIO(ctx, 1, telemetry.ReadDirection)
	span.Debug("checked for presence of key")

	return ok, nil
}

func (ks *keyspace) Set(ctx context.Context, k, v []byte) error {
	ctx, span := ks.Telemetry.StartSpan(
		ctx,
		"set",
		telemetry.If(isShortASCII(k), telemetry.String("key", string(k))),
		telemetry.Int("key_size", len(k)),
		telemetry.Int("value_size", len(v)),
	)
	defer span.End()

	if err := ks.Next.Set(ctx, k, v); err != nil {
		span.Error("could not set key/value pair", err)
		return err
	}

	ks.PairIO(ctx, 1, telemetry.WriteDirection)
	ks.DataIO(ctx, int64(len(k)+len(v)), telemetry.WriteDirection)

	if len(v) == 0 {
		span.Debug("deleted key/value pair")
	} else {
		span.Debug("set key/value pair")
	}

	return nil
}

func (ks *keyspace) Range(ctx context.Context, fn kv.RangeFunc) error {
	ctx, span := ks.Telemetry.StartSpan(ctx, "range")
	defer span.End()

	var count int

	err := ks.Next.Range(
		ctx,
		func(ctx context.Context, k, v []byte) (bool, error) {
			count++
			ks.PairIO(ctx, 1, telemetry.ReadDirection)
			ks.DataIO(ctx, int64(len(k)+len(v)), telemetry.ReadDirection)
			return fn(ctx, k, v)
		},
	)

	span.SetAttributes(telemetry.Int("pairs_read", count))

	if err != nil {
		span.Error("could not range over key/value pairs", err)
		return err
	}

	span.Debug("completed reading key/value pairs")

	return nil
}

func (ks *keyspace) Close() error {
	ctx, span := ks.Telemetry.StartSpan(context.Background(), "close")
	defer span.End()

	if ks.Next == nil {
		span.Warn("keyspace is already closed")
		return nil
	}

	defer func() {
		ks.Next = nil
		ks.OpenCount(ctx, -1)
	}()

	if err := ks.Next.Close(); err != nil {
		span.Error("could not close keyspace", err)
		return err
	}

	span.Debug("closed keyspace")

	return nil
}
