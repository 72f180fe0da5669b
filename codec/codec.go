// Package codec centralizes record and attribute encoding.
//
// Persisted artefacts (managed stores, snapshot streams) record the codec
// name in their header; readers select the codec with ByName. Changing the
// codec of an existing artefact is not supported.
package codec

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Default is the codec used for newly created artefacts.
var Default Codec = GoJSON{}
