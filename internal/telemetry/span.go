package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span represents a single named and timed operation of a workflow.
//
// Events recorded on a span are added to the underlying trace span and
// written to the recorder's logger.
type Span struct {
	recorder *Recorder
	ctx      context.Context
	span     trace.Span
	logger   *slog.Logger
}

// End completes the span.
func (s *Span) End() {
	s.span.End()
}

// SetAttributes sets attributes on the span.
func (s *Span) SetAttributes(attrs ...Attr) {
	s.span.SetAttributes(otelAttrs(attrs)...)
	s.logger = s.logger.With(slogAttrs(attrs)...)
}

// Debug records a debug-level event.
func (s *Span) Debug(message string, attrs ...Attr) {
	s.record(slog.LevelDebug, message, attrs)
}

// Info records an info-level event.
func (s *Span) Info(message string, attrs ...Attr) {
	s.record(slog.LevelInfo, message, attrs)
}

// Warn records a warning-level event.
func (s *Span) Warn(message string, attrs ...Attr) {
	s.record(slog.LevelWarn, message, attrs)
}

// Error records an error-level event.
//
// It marks the span as failed and increments the recorder's error counter.
func (s *Span) Error(message string, err error, attrs ...Attr) {
	s.span.SetStatus(codes.Error, err.Error())
	s.span.RecordError(err, trace.WithAttributes(otelAttrs(attrs)...))
	s.recorder.errors(s.ctx, 1)

	if s.logger.Enabled(s.ctx, slog.LevelError) {
		s.logger.ErrorContext(
			s.ctx,
			message,
			append(
				slogAttrs(attrs),
				slog.String("error", err.Error()),
			)...,
		)
	}
}

func (s *Span) record(level slog.Level, message string, attrs []Attr) {
	s.span.AddEvent(message, trace.WithAttributes(otelAttrs(attrs)...))

	if s.logger.Enabled(s.ctx, level) {
		s.logger.Log(s.ctx, level, message, slogAttrs(attrs)...)
	}
}
