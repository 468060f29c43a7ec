// Package connectjson lets Connect handlers exchange plain Go structs as JSON.
package connectjson

import (
	"bytes"
	"encoding/json"

	"github.com/bufbuild/connect-go"
)

// Codec marshals messages with encoding/json. HTML escaping is off so scene
// code and scripts travel as written.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Unmarshal treats an empty payload as the zero message.
func (Codec) Unmarshal(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

var _ connect.Codec = (*Codec)(nil)
