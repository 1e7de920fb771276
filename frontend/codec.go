// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frontend

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// Codec encodes/decodes front-end messages
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// JSONCodec is a JSON-based codec
type JSONCodec struct{}

func (JSONCodec) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// defaultCodec is used when no codec is specified
var defaultCodec Codec = JSONCodec{}

// grpcCodecName is the content subtype the gRPC transport negotiates.
const grpcCodecName = "mbox-json"

// grpcCodec lets gRPC carry the same messages as the JSON-RPC transport,
// without generated protobuf types.
type grpcCodec struct {
	codec Codec
}

func (c grpcCodec) Marshal(v interface{}) ([]byte, error)      { return c.codec.Encode(v) }
func (c grpcCodec) Unmarshal(data []byte, v interface{}) error { return c.codec.Decode(data, v) }
func (grpcCodec) Name() string                                 { return grpcCodecName }

func init() {
	encoding.RegisterCodec(grpcCodec{codec: defaultCodec})
}
