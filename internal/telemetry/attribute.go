package telemetry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/constraints"
)

// Attr is a telemetry attribute. It is rendered both as an OpenTelemetry
// attribute and as a structured log attribute.
type Attr struct {
	key string
	val attribute.Value
}

// String returns a string attribute.
func String[T ~string](k string, v T) Attr {
	return Attr{k, attribute.StringValue(string(v))}
}

// Stringer returns a string attribute. The value is the result of calling
// v.String().
func Stringer(k string, v fmt.Stringer) Attr {
	return String(k, v.String())
}

// UUID returns an attribute that is the string representation of a UUID.
func UUID[T ~[16]byte](k string, v T) Attr {
	return String(k, uuid.UUID(v).String())
}

// Bool returns a boolean attribute.
func Bool[T ~bool](k string, v T) Attr {
	return Attr{k, attribute.BoolValue(bool(v))}
}

// Int returns an integer attribute.
func Int[T constraints.Integer](k string, v T) Attr {
	return Attr{k, attribute.Int64Value(int64(v))}
}

// Duration returns a string attribute containing v in human readable format.
func Duration(k string, v time.Duration) Attr {
	return String(k, v.String())
}

// Time returns a string attribute containing v in [time.RFC3339Nano] format.
func Time(k string, v time.Time) Attr {
	return String(k, v.Format(time.RFC3339Nano))
}

// If returns attr if cond is true, otherwise it returns an empty attribute
// that is ignored.
func If(cond bool, attr Attr) Attr {
	if cond {
		return attr
	}
	return Attr{}
}

func (a Attr) isEmpty() bool {
	return a.key == ""
}

func (a Attr) otel() attribute.KeyValue {
	return attribute.KeyValue{
		Key:   attribute.Key(a.key),
		Value: a.val,
	}
}

func (a Attr) slog() slog.Attr {
	switch a.val.Type() {
	case attribute.BOOL:
		return slog.Bool(a.key, a.val.AsBool())
	case attribute.INT64:
		return slog.Int64(a.key, a.val.AsInt64())
	default:
		return slog.String(a.key, a.val.Emit())
	}
}

func otelAttrs(attrs []Attr) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		if !a.isEmpty() {
			kvs = append(kvs, a.otel())
		}
	}
	return kvs
}

func slogAttrs(attrs []Attr) []any {
	out := make([]any, 0, len(attrs))
	for _, a := range attrs {
		if !a.isEmpty() {
			out = append(out, a.slog())
		}
	}
	return out
}
