package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var mapStringAny = reflect.TypeOf(map[string]any(nil))

// CBOR stores documents as canonical CBOR (RFC 8949 Core Deterministic), so
// equal documents always produce equal bytes.
// The zero value is not ready to use; construct with NewCBOR.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBOR constructs a CBOR codec. Maps decode with string keys so values
// re-encode to JSON.
func NewCBOR() (CBOR, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return CBOR{}, err
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: mapStringAny,
	}.DecMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{enc: em, dec: dm}, nil
}

func (CBOR) Name() string { return "cbor" }

func (c CBOR) Encode(v json.RawMessage) ([]byte, error) {
	doc, err := toAny(v)
	if err != nil {
		return nil, err
	}
	return c.enc.Marshal(doc)
}

func (c CBOR) Decode(b []byte) (json.RawMessage, error) {
	var doc any
	if err := c.dec.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode cbor: %w", err)
	}
	return json.Marshal(doc)
}
