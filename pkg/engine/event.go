package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Event is a progress update published before a step runs and after it
// completes or fails.
type Event struct {
	Step          string         `json:"step"`
	Number        int            `json:"step_number"`
	Total         int            `json:"total_steps"`
	Status        Status         `json:"status"`
	ExecutionTime *time.Duration `json:"-"`
	Error         string         `json:"error,omitempty"`
	Time          time.Time      `json:"time"`
}

type eventJSON struct {
	Step          string    `json:"step"`
	Number        int       `json:"step_number"`
	Total         int       `json:"total_steps"`
	Status        Status    `json:"status"`
	ExecutionTime *float64  `json:"execution_time,omitempty"`
	Error         string    `json:"error,omitempty"`
	Time          time.Time `json:"time"`
}

// MarshalJSON encodes ExecutionTime in seconds.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		Step:   e.Step,
		Number: e.Number,
		Total:  e.Total,
		Status: e.Status,
		Error:  e.Error,
		Time:   e.Time,
	}
	if e.ExecutionTime != nil {
		secs := e.ExecutionTime.Seconds()
		out.ExecutionTime = &secs
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes ExecutionTime from seconds.
func (e *Event) UnmarshalJSON(data []byte) error {
	var in eventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*e = Event{
		Step:   in.Step,
		Number: in.Number,
		Total:  in.Total,
		Status: in.Status,
		Error:  in.Error,
		Time:   in.Time,
	}
	if in.ExecutionTime != nil {
		d := time.Duration(*in.ExecutionTime * float64(time.Second))
		e.ExecutionTime = &d
	}
	return nil
}

// Observer receives progress events. Publish must not block for long; the
// engine calls it synchronously.
type Observer interface {
	Publish(ctx context.Context, ev Event)
}

// Resetter is implemented by observers holding progress state that the
// engine clears on Reset.
type Resetter interface {
	Reset()
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Publish(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Recorder keeps the latest event per step and the full event history in memory.
type Recorder struct {
	mu      sync.RWMutex
	latest  map[string]Event
	history []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{latest: make(map[string]Event)}
}

func (r *Recorder) Publish(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest[ev.Step] = ev
	r.history = append(r.history, ev)
}

// Latest returns the most recent event for step.
func (r *Recorder) Latest(step string) (Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.latest[step]
	return ev, ok
}

// History returns every event in publish order.
func (r *Recorder) History() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.history)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.latest)
	r.history = nil
}

// LogObserver writes each event to logger.
func LogObserver(logger *slog.Logger) Observer {
	return ObserverFunc(func(ctx context.Context, ev Event) {
		attrs := []any{
			"step", ev.Step,
			"step_number", ev.Number,
			"total_steps", ev.Total,
			"status", ev.Status,
		}
		if ev.ExecutionTime != nil {
			attrs = append(attrs, "execution_time", *ev.ExecutionTime)
		}

		if ev.Status == StatusFailed {
			attrs = append(attrs, "error", ev.Error)
			logger.WarnContext(ctx, "step failed", attrs...)
			return
		}
		logger.InfoContext(ctx, "step progress", attrs...)
	})
}
