package record

import (
	"bytes"
	"encoding/json"
)

// MarshalJSON renders the Object as a JSON object with fields in insertion
// order. Nested Objects and Object slices marshal recursively.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := 0; i < o.Len(); i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(o.Name(i))
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(o.Value(i))
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
