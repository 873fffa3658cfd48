// Package state provides the shared workflow context: a schema-less store
// whose values are a closed set of variants (number, text, bool, null, list,
// map, table) so that steps can match on the shape they expect.
package state

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// Kind identifies a Value variant.
type Kind string

const (
	KindNumber Kind = "number"
	KindText   Kind = "text"
	KindBool   Kind = "bool"
	KindNull   Kind = "null"
	KindList   Kind = "list"
	KindMap    Kind = "map"
	KindTable  Kind = "table"
)

// Value is implemented only by the variants in this package.
type Value interface {
	Kind() Kind
	// Any returns the plain Go representation used for JSON encoding and audit records.
	Any() any
	sealed()
}

type (
	Number float64
	Text   string
	Bool   bool
	Null   struct{}
	List   []Value
	Map    map[string]Value
)

// Table is a rectangular data set with named columns.
type Table struct {
	Columns []string  `json:"columns"`
	Rows    [][]Value `json:"rows"`
}

func (Number) Kind() Kind { return KindNumber }
func (Text) Kind() Kind   { return KindText }
func (Bool) Kind() Kind   { return KindBool }
func (Null) Kind() Kind   { return KindNull }
func (List) Kind() Kind   { return KindList }
func (Map) Kind() Kind    { return KindMap }
func (*Table) Kind() Kind { return KindTable }

func (n Number) Any() any { return float64(n) }
func (t Text) Any() any   { return string(t) }
func (b Bool) Any() any   { return bool(b) }
func (Null) Any() any     { return nil }

func (l List) Any() any {
	out := make([]any, len(l))
	for i, v := range l {
		out[i] = anyOf(v)
	}
	return out
}

func (m Map) Any() any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = anyOf(v)
	}
	return out
}

func (t *Table) Any() any {
	rows := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = List(row).Any()
	}
	return map[string]any{
		"columns": slices.Clone(t.Columns),
		"rows":    rows,
	}
}

func (Number) sealed() {}
func (Text) sealed()   {}
func (Bool) sealed()   {}
func (Null) sealed()   {}
func (List) sealed()   {}
func (Map) sealed()    {}
func (*Table) sealed() {}

// MarshalJSON encodes Null as JSON null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// UnmarshalJSON decodes a table, converting every cell through From.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	rows := make([][]Value, len(raw.Rows))
	for i, r := range raw.Rows {
		row := make([]Value, len(r))
		for j, cell := range r {
			v, err := From(cell)
			if err != nil {
				return fmt.Errorf("row %d column %d: %w", i, j, err)
			}
			row[j] = v
		}
		rows[i] = row
	}

	t.Columns = raw.Columns
	t.Rows = rows
	return nil
}

// Get returns the value stored under key.
func (m Map) Get(key string) (Value, bool) {
	v, ok := m[key]
	return v, ok
}

// Number returns the numeric value under key. Missing keys and non-numeric
// values report false.
func (m Map) Number(key string) (float64, bool) {
	n, ok := m[key].(Number)
	return float64(n), ok
}

// Text returns the text value under key.
func (m Map) Text(key string) (string, bool) {
	s, ok := m[key].(Text)
	return string(s), ok
}

// Map returns the nested map under key.
func (m Map) Map(key string) (Map, bool) {
	v, ok := m[key].(Map)
	return v, ok
}

// Column returns the index of the named column or -1.
func (t *Table) Column(name string) int {
	return slices.Index(t.Columns, name)
}

// Len returns the row count.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Cell returns the value at row i in the named column.
func (t *Table) Cell(i int, column string) (Value, bool) {
	c := t.Column(column)
	if c < 0 || i < 0 || i >= len(t.Rows) || c >= len(t.Rows[i]) {
		return nil, false
	}
	return t.Rows[i][c], true
}

// From converts a decoded JSON value (or the equivalent Go scalar types)
// into a Value. Values that already implement Value are returned as is.
func From(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(x), nil
	case int:
		return Number(x), nil
	case int32:
		return Number(x), nil
	case int64:
		return Number(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedValue, x)
		}
		return Number(f), nil
	case string:
		return Text(x), nil
	case bool:
		return Bool(x), nil
	case []any:
		out := make(List, len(x))
		for i, item := range x {
			val, err := From(item)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case []string:
		out := make(List, len(x))
		for i, item := range x {
			out[i] = Text(item)
		}
		return out, nil
	case map[string]any:
		out := make(Map, len(x))
		for k, item := range x {
			val, err := From(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// MustFrom is From for literals known to be convertible.
func MustFrom(v any) Value {
	val, err := From(v)
	if err != nil {
		panic(err)
	}
	return val
}

// Float reports whether v is a finite Number.
func Float(v Value) (float64, bool) {
	n, ok := v.(Number)
	if !ok || math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
		return 0, false
	}
	return float64(n), true
}

func anyOf(v Value) any {
	if v == nil {
		return nil
	}
	return v.Any()
}
