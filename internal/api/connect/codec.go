package connect

import (
	"encoding/json"
)

// codecName replaces connect's protobuf-only JSON codec for both handlers
// and clients, so plain structs can be used as messages.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
