// Package workflow assembles the tax drafting steps (extract, draft,
// diagnose, adjust) into an engine run and collects its results.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JaimeStill/taxdraft/internal/extraction"
	"github.com/JaimeStill/taxdraft/pkg/engine"
	"github.com/JaimeStill/taxdraft/pkg/provenance"
	"github.com/JaimeStill/taxdraft/pkg/state"
)

// Result is the outcome of one workflow run.
type Result struct {
	State       *state.State        `json:"context"`
	Steps       []engine.StepStatus `json:"steps"`
	Progress    engine.Progress     `json:"progress"`
	Provenance  []provenance.Entry  `json:"provenance"`
	Confidence  map[string]float64  `json:"confidence"`
	Halted      bool                `json:"halted"`
	Err         error               `json:"-"`
	CompletedAt time.Time           `json:"completed_at"`
}

// Build returns an engine with the four steps in order, the configured
// policy, the runtime tracker and observers.
func Build(rt *Runtime, observers ...engine.Observer) (*engine.Engine, error) {
	policy, err := rt.Config.EnginePolicy()
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithPolicy(policy),
		engine.WithTracker(rt.Tracker),
		engine.WithLogger(rt.Logger),
	}
	for _, o := range observers {
		opts = append(opts, engine.WithObserver(o))
	}

	e := engine.New(opts...)
	e.AddStep(ExtractData(rt))
	e.AddStep(DraftForms(rt))
	e.AddStep(Diagnostics(rt))
	e.AddStep(Adjustments(rt))
	return e, nil
}

// Execute runs the workflow over files with a fresh provenance tracker.
// A halt is reported through Result.Halted and Result.Err rather than the
// returned error, which is reserved for failures to start the run.
func Execute(ctx context.Context, rt *Runtime, files []extraction.Document, observers ...engine.Observer) (*Result, error) {
	run := *rt
	run.Tracker = provenance.New()
	run.Logger = rt.Logger.With("system", "workflow")

	e, err := Build(&run, observers...)
	if err != nil {
		return nil, fmt.Errorf("build workflow: %w", err)
	}

	initial := state.New()
	initial.Set(KeyUploadedFiles, UploadedFiles(files))

	final, execErr := e.Execute(ctx, initial)
	if execErr != nil && !errors.Is(execErr, engine.ErrHalted) {
		return nil, fmt.Errorf("execute workflow: %w", execErr)
	}

	return &Result{
		State:       final,
		Steps:       e.Steps(),
		Progress:    e.Progress(),
		Provenance:  run.Tracker.Export(),
		Confidence:  run.Tracker.ConfidenceSummary(),
		Halted:      execErr != nil,
		Err:         execErr,
		CompletedAt: time.Now(),
	}, nil
}

// Failed reports whether any step failed.
func (r *Result) Failed() bool {
	return r.Progress.Failed > 0
}
