package test

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/evsrc/runtime/internal/telemetry"
	"golang.org/x/exp/slices"
)

// NewLogger returns a logger that writes to the test's log.
//
// Records that are emitted after the test has completed are discarded.
func NewLogger(t testing.TB) *slog.Logger {
	h := &logHandler{
		state: &logState{T: t},
	}

	t.Cleanup(func() {
		h.state.Lock()
		h.state.Done = true
		h.state.Unlock()
	})

	return slog.New(h)
}

// NewTelemetryProvider returns a telemetry provider for use in tests.
//
// Traces and metrics are discarded, logs are written to the test's log.
func NewTelemetryProvider(t testing.TB) *telemetry.Provider {
	return &telemetry.Provider{
		Logger: NewLogger(t),
	}
}

type logState struct {
	sync.Mutex
	T    testing.TB
	Done bool
}

type logHandler struct {
	state *logState
	attrs []slog.Attr
	group string
}

func (h *logHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *logHandler) Handle(_ context.Context, rec slog.Record) error {
	buf := &strings.Builder{}
	fmt.Fprintf(buf, "[%s] %s", rec.Level, rec.Message)

	write := func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fmt.Fprintf(buf, "  %s=%s", key, a.Value)
		return true
	}

	for _, a := range h.attrs {
		write(a)
	}
	rec.Attrs(write)

	h.state.Lock()
	defer h.state.Unlock()

	if !h.state.Done {
		h.state.T.Log(buf.String())
	}

	return nil
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logHandler{
		state: h.state,
		attrs: append(slices.Clone(h.attrs), attrs...),
		group: h.group,
	}
}

func (h *logHandler) WithGroup(name string) slog.Handler {
	if h.group != "" {
		name = h.group + "." + name
	}

	return &logHandler{
		state: h.state,
		attrs: h.attrs,
		group: name,
	}
}
