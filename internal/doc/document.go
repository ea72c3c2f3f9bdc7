package doc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Reserved field names.
const (
	FieldID      = "_id"
	FieldRev     = "_rev"
	FieldDeleted = "_deleted"
)

// Document is a JSON object addressed by its _id field.
type Document map[string]any

// ID returns the _id field, or "" if it is missing or not a string.
func (d Document) ID() string {
	s, _ := d[FieldID].(string)
	return s
}

// Rev returns the _rev field, or "" if it is missing or not a string.
func (d Document) Rev() string {
	s, _ := d[FieldRev].(string)
	return s
}

// Deleted reports whether d is a tombstone.
func (d Document) Deleted() bool {
	b, _ := d[FieldDeleted].(bool)
	return b
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneValue(map[string]any(d)).(map[string]any)
}

// With returns a copy of d with the given fields set.
func (d Document) With(fields map[string]any) Document {
	out := d.Clone()
	if out == nil {
		out = Document{}
	}
	maps.Copy(out, fields)
	return out
}

// Body returns a copy of d without _rev. Tombstones keep _deleted.
func (d Document) Body() Document {
	out := d.Clone()
	delete(out, FieldRev)
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = cloneValue(e)
		}
		return out
	case Document:
		return Document(cloneValue(map[string]any(val)).(map[string]any))
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return val
	}
}

// Parse decodes a JSON object into a Document, keeping numbers as json.Number.
func Parse(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var d Document
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if d == nil {
		return nil, fmt.Errorf("parse document: not an object")
	}
	return d, nil
}

// FromValue converts an arbitrary JSON-encodable Go value (a struct, a map
// decoded by another library) into a Document.
func FromValue(v any) (Document, error) {
	if d, ok := v.(Document); ok {
		return d.Clone(), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return Parse(data)
}

// MarshalJSON encodes d without HTML escaping. json.Marshal escapes the
// result again; write through an Encoder with SetEscapeHTML(false) to keep
// <, > and & literal.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any(d)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
