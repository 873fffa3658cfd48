package runs

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/taxdraft/internal/extraction"
	"github.com/JaimeStill/taxdraft/internal/workflow"
	"github.com/JaimeStill/taxdraft/pkg/engine"
	"github.com/JaimeStill/taxdraft/pkg/pagination"
	"github.com/JaimeStill/taxdraft/pkg/provenance"
)

// System defines the run domain operations.
type System interface {
	Handler(maxUploadSize int64) *Handler

	// Execute stores uploads, runs the workflow over them and persists the
	// outcome. A halted or failed workflow still yields a persisted run.
	Execute(ctx context.Context, uploads []Upload) (*Run, error)

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Run], error)

	Find(ctx context.Context, id uuid.UUID) (*Run, error)
	// Progress returns the live step events published for id.
	Progress(ctx context.Context, id uuid.UUID) ([]engine.Event, error)

	Provenance(
		ctx context.Context,
		id uuid.UUID,
		page pagination.PageRequest,
		filters RecordFilters,
	) (*pagination.PageResult[Record], error)

	// Export returns the full audit trail of id in insertion order.
	Export(ctx context.Context, id uuid.UUID) ([]provenance.Entry, error)
	// Confidence returns the mean confidence per field over the audit trail.
	Confidence(ctx context.Context, id uuid.UUID) (map[string]float64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Runner executes the workflow for one run.
type Runner interface {
	Run(ctx context.Context, files []extraction.Document, observers ...engine.Observer) (*workflow.Result, error)
}

// RunnerFunc adapts a function into a Runner.
type RunnerFunc func(ctx context.Context, files []extraction.Document, observers ...engine.Observer) (*workflow.Result, error)

func (f RunnerFunc) Run(ctx context.Context, files []extraction.Document, observers ...engine.Observer) (*workflow.Result, error) {
	return f(ctx, files, observers...)
}

// Progress publishes live step events per run and reads them back.
type Progress interface {
	Observer(runID string) engine.Observer
	Snapshot(ctx context.Context, runID string) ([]engine.Event, error)
}
