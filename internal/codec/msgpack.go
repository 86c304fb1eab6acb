package codec

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack stores documents as MessagePack. Integers keep their exact value.
type Msgpack struct{}

func (Msgpack) Name() string { return "msgpack" }

func (Msgpack) Encode(v json.RawMessage) ([]byte, error) {
	doc, err := toAny(v)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(doc)
}

func (Msgpack) Decode(b []byte) (json.RawMessage, error) {
	var doc any
	if err := msgpack.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode msgpack: %w", err)
	}
	return json.Marshal(doc)
}
