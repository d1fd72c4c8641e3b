package stream

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec frames messages as JSON under the "json" content subtype, for
// relays that bridge the stream without protobuf.
type jsonCodec struct{}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
