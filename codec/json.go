package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// It is kept for artefacts written by tools that do not link go-json;
// both codecs produce interchangeable bytes for acton's record types.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }
