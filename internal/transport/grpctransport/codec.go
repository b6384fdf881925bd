// Package grpctransport exposes the filter and event handler services over
// gRPC.
//
// Messages are encoded as CBOR using the "cbor" content-subtype.
package grpctransport

import (
	"github.com/evsrc/runtime/internal/cborx"
	"google.golang.org/grpc/encoding"
)

// ContentSubtype is the gRPC content-subtype of the codec used by the
// services in this package.
const ContentSubtype = "cbor"

func init() {
	encoding.RegisterCodec(codec{})
}

type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	return cborx.Marshal(v)
}

func (codec) Unmarshal(data []byte, v any) error {
	return cborx.Unmarshal(data, v)
}

func (codec) Name() string {
	return ContentSubtype
}
