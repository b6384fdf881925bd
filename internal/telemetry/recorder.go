package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Recorder records traces, metrics and logs for a particular subsystem.
type Recorder struct {
	name    string
	tracer  trace.Tracer
	meter   metric.Meter
	logger  *slog.Logger
	attrs   attribute.Set
	spanKVs []attribute.KeyValue

	errors Instrument[int64]
}

// Logger returns the recorder's logger.
func (r *Recorder) Logger() *slog.Logger {
	return r.logger
}

// StartSpan starts a new span.
//
// The returned context carries the span. The span must be ended by calling
// [Span.End].
func (r *Recorder) StartSpan(
	ctx context.Context,
	name string,
	attrs ...Attr,
) (context.Context, *Span) {
	ctx, span := r.tracer.Start(
		ctx,
		r.name+"."+name,
		trace.WithAttributes(r.spanKVs...),
		trace.WithAttributes(otelAttrs(attrs)...),
	)

	logger := r.logger.With(slogAttrs(attrs)...)

	if sc := span.SpanContext(); sc.HasSpanID() {
		logger = logger.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	return ctx, &Span{
		recorder: r,
		ctx:      ctx,
		span:     span,
		logger:   logger,
	}
}

// Instrument is a function that records a metric value of type T.
type Instrument[T any] func(context.Context, T, ...Attr)

// Counter returns a new monotonic counter instrument.
func (r *Recorder) Counter(name, unit, desc string) Instrument[int64] {
	inst, err := r.meter.Int64Counter(
		r.name+"."+name,
		metric.WithUnit(unit),
		metric.WithDescription(desc),
	)
	if err != nil {
		panic(err)
	}

	return func(ctx context.Context, v int64, attrs ...Attr) {
		inst.Add(
			ctx,
			v,
			metric.WithAttributeSet(r.attrs),
			metric.WithAttributes(otelAttrs(attrs)...),
		)
	}
}

// UpDownCounter returns a new counter instrument that can increase or decrease.
func (r *Recorder) UpDownCounter(name, unit, desc string) Instrument[int64] {
	inst, err := r.meter.Int64UpDownCounter(
		r.name+"."+name,
		metric.WithUnit(unit),
		metric.WithDescription(desc),
	)
	if err != nil {
		panic(err)
	}

	return func(ctx context.Context, v int64, attrs ...Attr) {
		inst.Add(
			ctx,
			v,
			metric.WithAttributeSet(r.attrs),
			metric.WithAttributes(otelAttrs(attrs)...),
		)
	}
}

// Histogram returns a new histogram instrument.
func (r *Recorder) Histogram(name, unit, desc string) Instrument[int64] {
	inst, err := r.meter.Int64Histogram(
		r.name+"."+name,
		metric.WithUnit(unit),
		metric.WithDescription(desc),
	)
	if err != nil {
		panic(err)
	}

	return func(ctx context.Context, v int64, attrs ...Attr) {
		inst.Record(
			ctx,
			v,
			metric.WithAttributeSet(r.attrs),
			metric.WithAttributes(otelAttrs(attrs)...),
		)
	}
}

var (
	// ReadDirection is an attribute that indicates a read operation.
	ReadDirection = String("direction", "read")

	// WriteDirection is an attribute that indicates a write operation.
	WriteDirection = String("direction", "write")
)
