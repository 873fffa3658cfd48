// Package provenance records an append-only audit trail that attributes every
// derived value to the step and source that produced it, with a confidence score.
package provenance

import (
	"maps"
	"math"
	"sync"
	"time"
)

// DefaultConfidence applies when a record is added without WithConfidence.
const DefaultConfidence = 1.0

// Record is an immutable attribution of a value.
type Record struct {
	Step       string
	Field      string
	Value      any
	SourceRef  string
	Confidence float64
	Timestamp  time.Time
	Metadata   map[string]any
}

// Tracker is an append-only record store. It is safe for concurrent use,
// but each workflow run owns its own Tracker.
type Tracker struct {
	mu      sync.RWMutex
	records []Record
	now     func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the wall clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New creates an empty Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordOption configures a single record.
type RecordOption func(*Record)

// WithConfidence sets the confidence score. Values are clamped to [0, 1];
// NaN is stored as 0.
func WithConfidence(c float64) RecordOption {
	return func(r *Record) {
		r.Confidence = clamp(c)
	}
}

// WithMetadata attaches a copy of md to the record.
func WithMetadata(md map[string]any) RecordOption {
	return func(r *Record) {
		if md != nil {
			r.Metadata = maps.Clone(md)
		}
	}
}

// Add appends a record stamped with the current time. Timestamps never
// decrease: a clock reading earlier than the previous record is raised to it,
// so insertion order and timestamp order always agree.
func (t *Tracker) Add(step, field string, value any, sourceRef string, opts ...RecordOption) Record {
	r := Record{
		Step:       step,
		Field:      field,
		Value:      value,
		SourceRef:  sourceRef,
		Confidence: DefaultConfidence,
	}
	for _, opt := range opts {
		opt(&r)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	r.Timestamp = t.now()
	if n := len(t.records); n > 0 {
		if last := t.records[n-1].Timestamp; r.Timestamp.Before(last) {
			r.Timestamp = last
		}
	}

	t.records = append(t.records, r)
	return r.clone()
}

// ByStep returns the records produced by step in insertion order.
func (t *Tracker) ByStep(step string) []Record {
	return t.filter(func(r Record) bool { return r.Step == step })
}

// ByField returns the history of field in insertion order.
func (t *Tracker) ByField(field string) []Record {
	return t.filter(func(r Record) bool { return r.Field == field })
}

// Latest returns the value of the newest record for field. Equal timestamps
// resolve to the record inserted last.
func (t *Tracker) Latest(field string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var (
		latest Record
		found  bool
	)
	for _, r := range t.records {
		if r.Field != field {
			continue
		}
		if !found || !r.Timestamp.Before(latest.Timestamp) {
			latest = r
			found = true
		}
	}

	if !found {
		return nil, false
	}
	return latest.Value, true
}

// ConfidenceSummary returns, per field, the mean confidence over every record
// ever added for it.
func (t *Tracker) ConfidenceSummary() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range t.records {
		sums[r.Field] += r.Confidence
		counts[r.Field]++
	}

	summary := make(map[string]float64, len(sums))
	for field, sum := range sums {
		summary[field] = sum / float64(counts[field])
	}
	return summary
}

// Records returns a copy of every record in insertion order.
func (t *Tracker) Records() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, len(t.records))
	for i, r := range t.records {
		out[i] = r.clone()
	}
	return out
}

// Len returns the record count.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Clear discards all records. It is meant for the start of a fresh session,
// not for resetting an engine between runs.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = nil
}

func (t *Tracker) filter(match func(Record) bool) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Record, 0)
	for _, r := range t.records {
		if match(r) {
			out = append(out, r.clone())
		}
	}
	return out
}

// clone copies the metadata map so callers cannot reach stored records.
func (r Record) clone() Record {
	r.Metadata = maps.Clone(r.Metadata)
	return r
}

func clamp(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return min(max(c, 0), 1)
}
