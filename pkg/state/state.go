package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrMissingKey indicates the requested key is not present.
	ErrMissingKey = errors.New("missing key")
	// ErrShapeMismatch indicates the key holds a different variant than requested.
	ErrShapeMismatch = errors.New("unexpected value shape")
	// ErrUnsupportedValue indicates a Go value with no Value variant.
	ErrUnsupportedValue = errors.New("unsupported value type")
)

// State is the mutable context shared by every step of a run. Keys are kept
// in first-write order and cannot be deleted; Set on an existing key replaces
// its value in place. State is not safe for concurrent mutation.
type State struct {
	values map[string]Value
	keys   []string
}

// New creates an empty State.
func New() *State {
	return &State{values: make(map[string]Value)}
}

// Set stores v under key. A nil v is stored as Null.
func (s *State) Set(key string, v Value) {
	if v == nil {
		v = Null{}
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = v
}

// Get returns the value stored under key.
func (s *State) Get(key string) (Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key is present.
func (s *State) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Keys returns the keys in first-write order.
func (s *State) Keys() []string {
	return slices.Clone(s.keys)
}

// Len returns the number of keys.
func (s *State) Len() int {
	return len(s.keys)
}

// Snapshot returns a plain Go representation of the whole context.
func (s *State) Snapshot() map[string]any {
	out := make(map[string]any, len(s.keys))
	for _, k := range s.keys {
		out[k] = anyOf(s.values[k])
	}
	return out
}

// Lookup returns the value under key as variant T.
func Lookup[T Value](s *State, key string) (T, error) {
	var zero T

	v, ok := s.Get(key)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrMissingKey, key)
	}

	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %s", ErrShapeMismatch, key, v.Kind())
	}

	return t, nil
}

// MarshalJSON encodes the context as a JSON object in key order.
func (s *State) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.values[k])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the context. Objects shaped as
// {"columns": [...], "rows": [...]} decode as tables.
func (s *State) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("state must be a JSON object")
	}

	s.values = make(map[string]Value)
	s.keys = nil

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}

		v, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		s.Set(key, v)
	}

	_, err = dec.Token()
	return err
}

func decodeValue(raw any) (Value, error) {
	switch x := raw.(type) {
	case map[string]any:
		if t, ok := asTable(x); ok {
			return t, nil
		}
		out := make(Map, len(x))
		for k, item := range x {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case []any:
		out := make(List, len(x))
		for i, item := range x {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return From(raw)
	}
}

func asTable(m map[string]any) (*Table, bool) {
	if len(m) != 2 {
		return nil, false
	}
	cols, ok := m["columns"].([]any)
	if !ok {
		return nil, false
	}
	rows, ok := m["rows"].([]any)
	if !ok {
		return nil, false
	}

	t := &Table{Columns: make([]string, len(cols))}
	for i, c := range cols {
		name, ok := c.(string)
		if !ok {
			return nil, false
		}
		t.Columns[i] = name
	}

	for _, r := range rows {
		cells, ok := r.([]any)
		if !ok {
			return nil, false
		}
		row := make([]Value, len(cells))
		for j, cell := range cells {
			v, err := From(cell)
			if err != nil {
				return nil, false
			}
			row[j] = v
		}
		t.Rows = append(t.Rows, row)
	}

	return t, true
}
