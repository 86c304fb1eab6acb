package codec

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errInvalidJSON = errors.New("invalid json")

// JSON stores documents as compacted JSON text.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Encode(v json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (JSON) Decode(b []byte) (json.RawMessage, error) {
	if !json.Valid(b) {
		return nil, errInvalidJSON
	}
	return json.RawMessage(b), nil
}
