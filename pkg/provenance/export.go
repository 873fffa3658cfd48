package provenance

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"strconv"
	"time"
)

// TimestampFormat is the ISO-8601 layout used in exports.
const TimestampFormat = time.RFC3339Nano

// CSVHeader lists the export columns in order.
var CSVHeader = []string{
	"step", "field", "value", "source_ref",
	"confidence", "timestamp", "metadata",
}

// Entry is the plain, serializable form of a Record.
type Entry struct {
	Step       string         `json:"step"`
	Field      string         `json:"field"`
	Value      any            `json:"value"`
	SourceRef  string         `json:"source_ref"`
	Confidence float64        `json:"confidence"`
	Timestamp  string         `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Time parses the entry timestamp.
func (e Entry) Time() (time.Time, error) {
	return time.Parse(TimestampFormat, e.Timestamp)
}

type plain interface {
	Any() any
}

// Entry converts the record to its export form.
func (r Record) Entry() Entry {
	value := r.Value
	if p, ok := value.(plain); ok {
		value = p.Any()
	}

	return Entry{
		Step:       r.Step,
		Field:      r.Field,
		Value:      value,
		SourceRef:  r.SourceRef,
		Confidence: r.Confidence,
		Timestamp:  r.Timestamp.UTC().Format(TimestampFormat),
		Metadata:   maps.Clone(r.Metadata),
	}
}

// Export returns the audit trail in insertion order.
func (t *Tracker) Export() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]Entry, len(t.records))
	for i, r := range t.records {
		entries[i] = r.Entry()
	}
	return entries
}

// WriteCSV renders entries as CSV with a header row. String values are
// written verbatim; other values and metadata are JSON-encoded.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CSVHeader); err != nil {
		return err
	}

	for i, e := range entries {
		value, err := cell(e.Value)
		if err != nil {
			return fmt.Errorf("entry %d value: %w", i, err)
		}

		metadata := ""
		if len(e.Metadata) > 0 {
			if metadata, err = cell(e.Metadata); err != nil {
				return fmt.Errorf("entry %d metadata: %w", i, err)
			}
		}

		row := []string{
			e.Step,
			e.Field,
			value,
			e.SourceRef,
			strconv.FormatFloat(e.Confidence, 'f', -1, 64),
			e.Timestamp,
			metadata,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func cell(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
