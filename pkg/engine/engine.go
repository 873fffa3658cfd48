// Package engine runs an ordered list of steps over a shared state,
// isolating step failures and publishing progress to observers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/JaimeStill/taxdraft/pkg/provenance"
	"github.com/JaimeStill/taxdraft/pkg/state"
)

const instrumentation = "github.com/JaimeStill/taxdraft/pkg/engine"

var (
	ErrHalted   = errors.New("workflow halted")
	ErrNotReset = errors.New("workflow has not been reset")
	ErrRunning  = errors.New("workflow is already executing")
	ErrPanicked = errors.New("step panicked")
)

// Progress summarizes step statuses.
type Progress struct {
	Total      int     `json:"total_steps"`
	Completed  int     `json:"completed_steps"`
	Failed     int     `json:"failed_steps"`
	Pending    int     `json:"pending_steps"`
	Percentage float64 `json:"progress_percentage"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the continuation policy. The default is ContinueAlways.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithObserver registers an observer. It may be given more than once.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithTracker shares an existing provenance tracker with the engine.
func WithTracker(t *provenance.Tracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// WithClock replaces time.Now for step timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger for workflow lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer sets the tracer used for step spans. The default is the global provider's.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithMeter sets the meter for the step duration histogram.
func WithMeter(m metric.Meter) Option {
	return func(e *Engine) { e.meter = m }
}

// Engine executes registered steps sequentially in insertion order.
type Engine struct {
	mu        sync.RWMutex
	entries   []*entry
	executing bool

	policy    Policy
	observers []Observer
	tracker   *provenance.Tracker
	now       func() time.Time
	logger    *slog.Logger
	tracer    trace.Tracer
	meter     metric.Meter
	duration  metric.Float64Histogram
}

// New creates an Engine. Without options it continues past every failure,
// logs nowhere and owns a fresh provenance tracker.
func New(opts ...Option) *Engine {
	e := &Engine{
		policy: ContinueAlways,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.tracker == nil {
		e.tracker = provenance.New()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(instrumentation)
	}
	if e.meter == nil {
		e.meter = otel.Meter(instrumentation)
	}

	hist, err := e.meter.Float64Histogram(
		"workflow.step.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of workflow step execution"),
	)
	if err != nil {
		e.logger.Warn("step duration histogram unavailable", "error", err)
	}
	e.duration = hist

	return e
}

// Tracker returns the provenance tracker shared with the steps.
func (e *Engine) Tracker() *provenance.Tracker {
	return e.tracker
}

// AddStep appends step to the execution order.
func (e *Engine) AddStep(step Step) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, &entry{step: step, status: StatusPending})
}

// Execute runs every step in order. A failed step is recorded and the policy
// decides whether to continue; when it halts, the partially updated state is
// returned with an error wrapping ErrHalted and the step error.
func (e *Engine) Execute(ctx context.Context, s *state.State) (*state.State, error) {
	if s == nil {
		s = state.New()
	}

	entries, err := e.begin()
	if err != nil {
		return s, err
	}
	defer e.finish()

	total := len(entries)
	e.logger.InfoContext(ctx, "workflow started", "steps", total)

	for i, en := range entries {
		next, err := e.runStep(ctx, en, i+1, total, s)
		if next != nil {
			s = next
		}
		if err == nil {
			continue
		}

		if !e.policy.Continue(en.step, err) {
			e.logger.WarnContext(ctx, "workflow halted", "step", en.step.Name(), "error", err)
			return s, fmt.Errorf("%w: step %s: %w", ErrHalted, en.step.Name(), err)
		}
	}

	p := e.Progress()
	e.logger.InfoContext(ctx, "workflow finished",
		"completed", p.Completed,
		"failed", p.Failed,
	)
	return s, nil
}

func (e *Engine) begin() ([]*entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.executing {
		return nil, ErrRunning
	}
	for _, en := range e.entries {
		if en.status != StatusPending {
			return nil, fmt.Errorf("%w: step %s is %s", ErrNotReset, en.step.Name(), en.status)
		}
	}

	e.executing = true
	return append([]*entry(nil), e.entries...), nil
}

func (e *Engine) finish() {
	e.mu.Lock()
	e.executing = false
	e.mu.Unlock()
}

func (e *Engine) runStep(ctx context.Context, en *entry, number, total int, s *state.State) (*state.State, error) {
	name := en.step.Name()

	ctx, span := e.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("workflow.step.name", name),
		attribute.Int("workflow.step.number", number),
	))
	defer span.End()

	start := e.now()
	e.mu.Lock()
	en.status = StatusRunning
	en.start = start
	e.mu.Unlock()

	e.publish(ctx, Event{
		Step:   name,
		Number: number,
		Total:  total,
		Status: StatusRunning,
		Time:   start,
	})

	next, err := invoke(ctx, en.step, s)
	if next == nil {
		next = s
	}

	if err != nil {
		recovered := en.step.OnError(ctx, next, err)
		if recovered != nil {
			next = recovered
		}

		end := e.now()
		e.mu.Lock()
		en.status = StatusFailed
		en.err = err.Error()
		en.end = end
		e.mu.Unlock()

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.record(ctx, name, StatusFailed, end.Sub(start))

		e.publish(ctx, Event{
			Step:   name,
			Number: number,
			Total:  total,
			Status: StatusFailed,
			Error:  err.Error(),
			Time:   end,
		})
		return next, err
	}

	end := e.now()
	e.mu.Lock()
	en.status = StatusCompleted
	en.end = end
	e.mu.Unlock()

	elapsed := end.Sub(start)
	e.record(ctx, name, StatusCompleted, elapsed)

	e.publish(ctx, Event{
		Step:          name,
		Number:        number,
		Total:         total,
		Status:        StatusCompleted,
		ExecutionTime: &elapsed,
		Time:          end,
	})
	return next, nil
}

// invoke runs step, converting a panic into an error wrapping ErrPanicked.
func invoke(ctx context.Context, step Step, s *state.State) (next *state.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = nil, fmt.Errorf("%w: %s: %v", ErrPanicked, step.Name(), r)
		}
	}()
	return step.Run(ctx, s)
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	for _, o := range e.observers {
		o.Publish(ctx, ev)
	}
}

func (e *Engine) record(ctx context.Context, name string, status Status, d time.Duration) {
	if e.duration == nil {
		return
	}
	e.duration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("workflow.step.name", name),
		attribute.String("workflow.step.status", string(status)),
	))
}

// Reset returns every step to pending and clears observers that hold
// progress state. The provenance tracker is left untouched.
func (e *Engine) Reset() {
	e.mu.Lock()
	for _, en := range e.entries {
		en.reset()
	}
	e.mu.Unlock()

	for _, o := range e.observers {
		if r, ok := o.(Resetter); ok {
			r.Reset()
		}
	}
}

// StepStatus reports the first registered step with the given name.
func (e *Engine) StepStatus(name string) (StepStatus, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, en := range e.entries {
		if en.step.Name() == name {
			return en.snapshot(), true
		}
	}
	return StepStatus{}, false
}

// Steps returns a status snapshot of every step in execution order.
func (e *Engine) Steps() []StepStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]StepStatus, len(e.entries))
	for i, en := range e.entries {
		out[i] = en.snapshot()
	}
	return out
}

// Progress counts steps by status. Percentage is completed over total.
func (e *Engine) Progress() Progress {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p := Progress{Total: len(e.entries)}
	for _, en := range e.entries {
		switch en.status {
		case StatusCompleted:
			p.Completed++
		case StatusFailed:
			p.Failed++
		}
	}
	p.Pending = p.Total - p.Completed - p.Failed
	if p.Total > 0 {
		p.Percentage = float64(p.Completed) / float64(p.Total) * 100
	}
	return p
}
