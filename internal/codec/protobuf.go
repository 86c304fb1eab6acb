package codec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxExactInt is the largest integer a google.protobuf.Value number (a double)
// holds exactly.
const maxExactInt = 1 << 53

// Protobuf stores documents as a serialized google.protobuf.Value. Numbers are
// doubles, so integers beyond ±2^53 are rejected instead of being rounded.
type Protobuf struct{}

func (Protobuf) Name() string { return "protobuf" }

func (Protobuf) Encode(v json.RawMessage) ([]byte, error) {
	doc, err := toAny(v)
	if err != nil {
		return nil, err
	}
	if err := checkExact(doc); err != nil {
		return nil, err
	}
	pv, err := structpb.NewValue(doc)
	if err != nil {
		return nil, fmt.Errorf("encode protobuf: %w", err)
	}
	return proto.Marshal(pv)
}

func (Protobuf) Decode(b []byte) (json.RawMessage, error) {
	var pv structpb.Value
	if err := proto.Unmarshal(b, &pv); err != nil {
		return nil, fmt.Errorf("decode protobuf: %w", err)
	}
	return json.Marshal(pv.AsInterface())
}

// checkExact rejects integers a double cannot represent exactly.
func checkExact(v any) error {
	switch t := v.(type) {
	case int64:
		if t > maxExactInt || t < -maxExactInt {
			return fmt.Errorf("encode protobuf: integer %d exceeds ±2^53", t)
		}
	case uint64:
		if t > maxExactInt {
			return fmt.Errorf("encode protobuf: integer %d exceeds ±2^53", t)
		}
	case map[string]any:
		for _, e := range t {
			if err := checkExact(e); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range t {
			if err := checkExact(e); err != nil {
				return err
			}
		}
	}
	return nil
}
