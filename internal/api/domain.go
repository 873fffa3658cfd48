package api

import (
	"context"

	"github.com/JaimeStill/taxdraft/internal/extraction"
	"github.com/JaimeStill/taxdraft/internal/prompts"
	"github.com/JaimeStill/taxdraft/internal/runs"
	"github.com/JaimeStill/taxdraft/internal/workflow"
	"github.com/JaimeStill/taxdraft/pkg/engine"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Runs    runs.System
	Prompts prompts.System
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(runtime *Runtime) *Domain {
	promptsSystem := prompts.New(
		runtime.Database.Connection(),
		runtime.Logger,
		runtime.Pagination,
	)

	extractor := extraction.New(
		extraction.StorageSource{Storage: runtime.Storage},
		runtime.Reasoner,
		promptsSystem,
		extraction.WithWorkers(runtime.Workflow.ExtractWorkers),
		extraction.WithLogger(runtime.Logger),
	)

	wf := &workflow.Runtime{
		Extractor: extractor,
		Reasoner:  runtime.Reasoner,
		Prompts:   promptsSystem,
		Logger:    runtime.Logger,
		Config:    runtime.Workflow,
	}

	runner := runs.RunnerFunc(func(ctx context.Context, files []extraction.Document, observers ...engine.Observer) (*workflow.Result, error) {
		return workflow.Execute(ctx, wf, files, observers...)
	})

	runsSystem := runs.New(
		runtime.Database.Connection(),
		runtime.Storage,
		runner,
		runtime.Progress,
		runtime.Logger,
		runtime.Pagination,
	)

	return &Domain{
		Runs:    runsSystem,
		Prompts: promptsSystem,
	}
}
