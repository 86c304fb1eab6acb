// Package codec converts JSON values to and from their stored byte form.
//
// Values travel through the gateway as JSON. A codec decides how they are laid
// out in the store: JSON is kept verbatim (compacted), the binary codecs decode
// the document into a generic value and re-encode it.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Codec encodes JSON documents for storage and decodes them back.
type Codec interface {
	// Name returns the codec identifier used in configuration.
	Name() string
	Encode(v json.RawMessage) ([]byte, error)
	Decode(b []byte) (json.RawMessage, error)
}

// Names lists the supported codec identifiers.
var Names = []string{"json", "msgpack", "cbor", "protobuf"}

// New returns the codec registered under name. An empty name selects JSON.
func New(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return Msgpack{}, nil
	case "cbor":
		return NewCBOR()
	case "protobuf":
		return Protobuf{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// toAny decodes a JSON document into a generic Go value. Integer literals
// that fit become int64 or uint64 so they survive binary codecs exactly;
// other numbers become float64.
func toAny(v json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode json: trailing data after document")
	}
	return convertNumbers(out)
}

func convertNumbers(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		return number(t)
	case map[string]any:
		for k, e := range t {
			c, err := convertNumbers(e)
			if err != nil {
				return nil, err
			}
			t[k] = c
		}
	case []any:
		for i, e := range t {
			c, err := convertNumbers(e)
			if err != nil {
				return nil, err
			}
			t[i] = c
		}
	}
	return v, nil
}

func number(n json.Number) (any, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("decode json: number %s: %w", s, err)
	}
	return f, nil
}
