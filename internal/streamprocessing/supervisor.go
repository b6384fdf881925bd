package streamprocessing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/evsrc/runtime/internal/processing"
	"github.com/evsrc/runtime/internal/streams"
	"github.com/evsrc/runtime/internal/telemetry"
	"github.com/evsrc/runtime/tenancy"
)

var (
	// ErrAlreadyRegistered is returned when registering a stream processor
	// with a key that is already registered.
	ErrAlreadyRegistered = errors.New("stream processor is already registered")

	// ErrNotRegistered is returned when starting or stopping a stream
	// processor that is not registered.
	ErrNotRegistered = errors.New("stream processor is not registered")

	// ErrAlreadyStarted is returned when starting a stream processor that has
	// already been started.
	ErrAlreadyStarted = errors.New("stream processor is already started")

	// ErrNotStarted is returned when waiting for a stream processor that has
	// not been started.
	ErrNotStarted = errors.New("stream processor is not started")
)

const shardCount = 16

// A Supervisor manages the stream processors of a single tenant.
//
// At most one stream processor may be registered for each [Key].
type Supervisor struct {
	Tenant       tenancy.ID
	Stream       streams.Reader
	States       *StateRepository
	IdleInterval time.Duration
	Telemetry    *telemetry.Provider
	Logger       *slog.Logger

	shards [shardCount]shard
}

type shard struct {
	m       sync.Mutex
	workers map[Key]*worker
}

// worker is a registered stream processor.
type worker struct {
	Processor *StreamProcessor

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Register creates a stream processor for the given key. The processor is not
// started until [Supervisor.Start] is called.
//
// It returns [ErrAlreadyRegistered] if there is already a stream processor
// registered with the same key.
func (s *Supervisor) Register(key Key, p processing.Processor) (*StreamProcessor, error) {
	sh := s.shard(key)

	sh.m.Lock()
	defer sh.m.Unlock()

	if _, ok := sh.workers[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, key)
	}

	if sh.workers == nil {
		sh.workers = map[Key]*worker{}
	}

	sp := &StreamProcessor{
		Tenant:       s.Tenant,
		Key:          key,
		Processor:    p,
		Stream:       s.Stream,
		States:       s.States,
		IdleInterval: s.IdleInterval,
		Telemetry:    s.Telemetry,
	}

	sh.workers[key] = &worker{Processor: sp}

	s.logger().Debug(
		"stream processor registered",
		slog.String("key", key.String()),
	)

	return sp, nil
}

// Start starts the stream processor with the given key. It runs until ctx is
// canceled, [Supervisor.Stop] is called, or it stops of its own accord.
func (s *Supervisor) Start(ctx context.Context, key Key) error {
	sh := s.shard(key)

	sh.m.Lock()
	defer sh.m.Unlock()

	w, ok := sh.workers[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}

	if w.done != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, key)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)

		w.err = w.Processor.Run(ctx)

		if w.err != nil && !errors.Is(w.err, context.Canceled) {
			s.logger().ErrorContext(
				ctx,
				"stream processor failed",
				slog.String("key", key.String()),
				slog.String("error", w.err.Error()),
			)
		}
	}()

	return nil
}

// Stop stops the stream processor with the given key, waits for it to finish
// and removes it from the supervisor.
func (s *Supervisor) Stop(key Key) error {
	sh := s.shard(key)

	sh.m.Lock()
	w, ok := sh.workers[key]
	delete(sh.workers, key)
	sh.m.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}

	w.stop()

	s.logger().Debug(
		"stream processor unregistered",
		slog.String("key", key.String()),
	)

	return nil
}

// IsRegistered returns true if a stream processor is registered with the
// given key.
func (s *Supervisor) IsRegistered(key Key) bool {
	sh := s.shard(key)

	sh.m.Lock()
	defer sh.m.Unlock()

	_, ok := sh.workers[key]
	return ok
}

// Done returns a channel that is closed when the stream processor with the
// given key stops running. ok is false if the processor is not registered or
// has not been started.
func (s *Supervisor) Done(key Key) (_ <-chan struct{}, ok bool) {
	sh := s.shard(key)

	sh.m.Lock()
	defer sh.m.Unlock()

	w, ok := sh.workers[key]
	if !ok || w.done == nil {
		return nil, false
	}

	return w.done, true
}

// Wait blocks until the stream processor with the given key stops running,
// then returns the error it stopped with.
//
// The error is [context.Canceled] if the processor was stopped by
// [Supervisor.Stop] or [Supervisor.Shutdown].
func (s *Supervisor) Wait(ctx context.Context, key Key) error {
	sh := s.shard(key)

	sh.m.Lock()
	w, ok := sh.workers[key]
	var done <-chan struct{}
	if ok {
		done = w.done
	}
	sh.m.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}

	if done == nil {
		return fmt.Errorf("%w: %s", ErrNotStarted, key)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return w.err
	}
}

// Notify wakes any stream processors that read from the given stream.
func (s *Supervisor) Notify(scope streams.ScopeID, stream streams.ID) {
	for i := range s.shards {
		sh := &s.shards[i]

		sh.m.Lock()
		for k, w := range sh.workers {
			if k.Scope == scope && k.SourceStream == stream {
				w.Processor.Notify()
			}
		}
		sh.m.Unlock()
	}
}

// Shutdown stops all stream processors and waits for them to finish.
func (s *Supervisor) Shutdown() {
	var workers []*worker

	for i := range s.shards {
		sh := &s.shards[i]

		sh.m.Lock()
		for k, w := range sh.workers {
			workers = append(workers, w)
			delete(sh.workers, k)
		}
		sh.m.Unlock()
	}

	for _, w := range workers {
		if w.cancel != nil {
			w.cancel()
		}
	}

	for _, w := range workers {
		w.stop()
	}
}

func (w *worker) stop() {
	if w.done == nil {
		return
	}

	w.cancel()
	<-w.done
}

func (s *Supervisor) shard(key Key) *shard {
	return &s.shards[xxhash.Sum64(key.bytes())%shardCount]
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
