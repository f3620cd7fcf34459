package gateway

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is the content subtype negotiated on the wire. Other services on
// the same server keep the default proto codec.
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries gateway messages as JSON. The messages are plain Go structs
// built around sdkmath.Int, which already knows its JSON form.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to marshal %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("gateway: failed to unmarshal %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return codecName
}
