package aqs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Row is one record of a dailyData response. AQS returns untyped JSON objects;
// Row keeps the field order of the upstream object so CSV headers match it.
type Row struct {
	keys   []string
	values map[string]string
}

// NewRow builds a Row from alternating key/value pairs. It is mostly useful in tests.
func NewRow(pairs ...string) Row {
	var r Row
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Set(pairs[i], pairs[i+1])
	}
	return r
}

// Keys returns the field names in upstream order.
func (r Row) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Get returns the rendered value for key.
func (r Row) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Len reports the number of fields.
func (r Row) Len() int {
	return len(r.keys)
}

// Set adds or replaces a field. A replaced field keeps its original position.
func (r *Row) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// UnmarshalJSON decodes a JSON object while preserving key order.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read row start: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("row must be a JSON object")
	}

	*r = Row{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read row key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected row key %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("read value for %q: %w", key, err)
		}
		value, err := renderValue(raw)
		if err != nil {
			return fmt.Errorf("render value for %q: %w", key, err)
		}
		r.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read row end: %w", err)
	}
	return nil
}

// MarshalJSON encodes the row as an object with its original key order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key: %w", err)
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// renderValue turns a raw JSON value into CSV cell text.
func renderValue(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("decode string: %w", err)
		}
		return s, nil
	case 'n':
		return "", nil
	case 't', 'f':
		b, err := strconv.ParseBool(string(trimmed))
		if err != nil {
			return "", fmt.Errorf("decode bool: %w", err)
		}
		return strconv.FormatBool(b), nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return "", fmt.Errorf("compact nested value: %w", err)
		}
		return buf.String(), nil
	default:
		return string(trimmed), nil
	}
}
