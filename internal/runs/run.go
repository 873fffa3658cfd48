// Package runs executes the tax drafting workflow over uploaded documents
// and persists each finished run with its audit trail.
package runs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/taxdraft/pkg/engine"
)

// Run status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusHalted    = "halted"
)

// Run is a persisted workflow execution.
type Run struct {
	ID          uuid.UUID           `json:"id"`
	Status      string              `json:"status"`
	Files       []File              `json:"files"`
	Steps       []engine.StepStatus `json:"steps"`
	Progress    engine.Progress     `json:"progress"`
	Context     json.RawMessage     `json:"context"`
	Error       *string             `json:"error"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt *time.Time          `json:"completed_at"`
}

// File is an uploaded source document stored in blob storage.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	PageCount   *int   `json:"page_count,omitempty"`
	StorageKey  string `json:"storage_key"`
}

// Upload carries one file of a new run.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
	PageCount   *int
}

// Record is a persisted provenance entry. Seq is its position in the
// run's export.
type Record struct {
	RunID      uuid.UUID      `json:"run_id"`
	Seq        int            `json:"seq"`
	Step       string         `json:"step"`
	Field      string         `json:"field"`
	Value      any            `json:"value"`
	SourceRef  string         `json:"source_ref"`
	Confidence float64        `json:"confidence"`
	RecordedAt time.Time      `json:"recorded_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
