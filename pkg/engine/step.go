package engine

import (
	"context"
	"time"

	"github.com/JaimeStill/taxdraft/pkg/state"
)

// Status is the lifecycle position of a step.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Step is a unit of work over the shared context.
type Step interface {
	Name() string
	Description() string
	// Run performs the step. A nil returned state means the input state,
	// which may have been mutated in place.
	Run(ctx context.Context, s *state.State) (*state.State, error)
	// OnError is called after Run fails. It may write fallback values and
	// returns the context to continue with.
	OnError(ctx context.Context, s *state.State, err error) *state.State
}

// Base supplies identity and the default OnError (context returned unchanged).
// Concrete steps embed it and implement Run.
type Base struct {
	name        string
	description string
}

// NewBase creates a Base with the given identity.
func NewBase(name, description string) Base {
	return Base{name: name, description: description}
}

func (b Base) Name() string        { return b.name }
func (b Base) Description() string { return b.description }

func (b Base) OnError(_ context.Context, s *state.State, _ error) *state.State {
	return s
}

// RunFunc is the signature of a step body.
type RunFunc func(ctx context.Context, s *state.State) (*state.State, error)

type funcStep struct {
	Base
	run RunFunc
}

// Func adapts a function into a Step with default error handling.
func Func(name, description string, run RunFunc) Step {
	return &funcStep{Base: NewBase(name, description), run: run}
}

func (f *funcStep) Run(ctx context.Context, s *state.State) (*state.State, error) {
	return f.run(ctx, s)
}

// StepStatus is a point-in-time view of a registered step.
type StepStatus struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// ExecutionTime returns end minus start, reporting false until both are set.
func (s StepStatus) ExecutionTime() (time.Duration, bool) {
	if s.StartedAt == nil || s.EndedAt == nil {
		return 0, false
	}
	return s.EndedAt.Sub(*s.StartedAt), true
}

type entry struct {
	step   Step
	status Status
	err    string
	start  time.Time
	end    time.Time
}

func (e *entry) snapshot() StepStatus {
	st := StepStatus{
		Name:        e.step.Name(),
		Description: e.step.Description(),
		Status:      e.status,
		Error:       e.err,
	}
	if !e.start.IsZero() {
		start := e.start
		st.StartedAt = &start
	}
	if !e.end.IsZero() {
		end := e.end
		st.EndedAt = &end
	}
	return st
}

func (e *entry) reset() {
	e.status = StatusPending
	e.err = ""
	e.start = time.Time{}
	e.end = time.Time{}
}
