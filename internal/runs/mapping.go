package runs

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/JaimeStill/taxdraft/pkg/query"
	"github.com/JaimeStill/taxdraft/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "runs", "r").
	Project("id", "ID").
	Project("status", "Status").
	Project("files", "Files").
	Project("steps", "Steps").
	Project("progress", "Progress").
	Project("context", "Context").
	Project("error", "Error").
	Project("started_at", "StartedAt").
	Project("completed_at", "CompletedAt")

var defaultSort = query.SortField{
	Field:      "StartedAt",
	Descending: true,
}

var recordProjection = query.
	NewProjectionMap("public", "provenance_records", "pr").
	Project("run_id", "RunID").
	Project("seq", "Seq").
	Project("step", "Step").
	Project("field", "Field").
	Project("value", "Value").
	Project("source_ref", "SourceRef").
	Project("confidence", "Confidence").
	Project("recorded_at", "RecordedAt").
	Project("metadata", "Metadata")

var recordSort = query.SortField{Field: "Seq"}

// Filters narrows run queries. Nil fields are ignored.
type Filters struct {
	Status *string `json:"status,omitempty"`
}

func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.WhereEquals("Status", f.Status)
}

// FiltersFromQuery reads status from query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters
	if s := values.Get("status"); s != "" {
		f.Status = &s
	}
	return f
}

// RecordFilters narrows provenance queries within a run. Step and Field
// match exactly; SourceRef matches as a case-insensitive substring.
type RecordFilters struct {
	Step      *string `json:"step,omitempty"`
	Field     *string `json:"field,omitempty"`
	SourceRef *string `json:"source_ref,omitempty"`
}

func (f RecordFilters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Step", f.Step).
		WhereEquals("Field", f.Field).
		WhereContains("SourceRef", f.SourceRef)
}

func RecordFiltersFromQuery(values url.Values) RecordFilters {
	var f RecordFilters

	if s := values.Get("step"); s != "" {
		f.Step = &s
	}
	if fl := values.Get("field"); fl != "" {
		f.Field = &fl
	}
	if sr := values.Get("source_ref"); sr != "" {
		f.SourceRef = &sr
	}

	return f
}

func scanRun(s repository.Scanner) (Run, error) {
	var (
		r                               Run
		files, steps, progress, context []byte
	)

	err := s.Scan(
		&r.ID,
		&r.Status,
		&files,
		&steps,
		&progress,
		&context,
		&r.Error,
		&r.StartedAt,
		&r.CompletedAt,
	)
	if err != nil {
		return r, err
	}

	if err := json.Unmarshal(files, &r.Files); err != nil {
		return r, fmt.Errorf("decode files: %w", err)
	}
	if err := json.Unmarshal(steps, &r.Steps); err != nil {
		return r, fmt.Errorf("decode steps: %w", err)
	}
	if err := json.Unmarshal(progress, &r.Progress); err != nil {
		return r, fmt.Errorf("decode progress: %w", err)
	}
	r.Context = json.RawMessage(context)

	return r, nil
}

func scanRecord(s repository.Scanner) (Record, error) {
	var (
		r               Record
		value, metadata []byte
	)

	err := s.Scan(
		&r.RunID,
		&r.Seq,
		&r.Step,
		&r.Field,
		&value,
		&r.SourceRef,
		&r.Confidence,
		&r.RecordedAt,
		&metadata,
	)
	if err != nil {
		return r, err
	}

	if value != nil {
		if err := json.Unmarshal(value, &r.Value); err != nil {
			return r, fmt.Errorf("decode value: %w", err)
		}
	}
	if metadata != nil {
		if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
			return r, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return r, nil
}
