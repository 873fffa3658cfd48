package prompts_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/taxdraft/internal/prompts"
	"github.com/JaimeStill/taxdraft/pkg/pagination"
	"github.com/JaimeStill/taxdraft/pkg/routes"
)

type mockSystem struct {
	instructions func(ctx context.Context, stage prompts.Stage) (string, error)
	find         func(ctx context.Context, id uuid.UUID) (*prompts.Prompt, error)
	create       func(ctx context.Context, cmd prompts.CreateCommand) (*prompts.Prompt, error)
	activate     func(ctx context.Context, id uuid.UUID) (*prompts.Prompt, error)
	list         func(ctx context.Context, page pagination.PageRequest, f prompts.Filters) (*pagination.PageResult[prompts.Prompt], error)
}

func (m *mockSystem) Handler() *prompts.Handler {
	return prompts.NewHandler(m, slog.New(slog.NewTextHandler(io.Discard, nil)), pagination.Config{DefaultPageSize: 10, MaxPageSize: 50})
}

func (m *mockSystem) Instructions(ctx context.Context, stage prompts.Stage) (string, error) {
	if m.instructions != nil {
		return m.instructions(ctx, stage)
	}
	return prompts.Instructions(stage)
}

func (m *mockSystem) Spec(_ context.Context, stage prompts.Stage) (string, error) {
	return prompts.Spec(stage)
}

func (m *mockSystem) List(ctx context.Context, page pagination.PageRequest, f prompts.Filters) (*pagination.PageResult[prompts.Prompt], error) {
	return m.list(ctx, page, f)
}

func (m *mockSystem) Find(ctx context.Context, id uuid.UUID) (*prompts.Prompt, error) {
	return m.find(ctx, id)
}

func (m *mockSystem) Create(ctx context.Context, cmd prompts.CreateCommand) (*prompts.Prompt, error) {
	return m.create(ctx, cmd)
}

func (m *mockSystem) Update(context.Context, uuid.UUID, prompts.UpdateCommand) (*prompts.Prompt, error) {
	return nil, errors.New("not implemented")
}

func (m *mockSystem) Delete(context.Context, uuid.UUID) error {
	return errors.New("not implemented")
}

func (m *mockSystem) Activate(ctx context.Context, id uuid.UUID) (*prompts.Prompt, error) {
	return m.activate(ctx, id)
}

func (m *mockSystem) Deactivate(context.Context, uuid.UUID) (*prompts.Prompt, error) {
	return nil, errors.New("not implemented")
}

func serve(sys prompts.System) *http.ServeMux {
	mux := http.NewServeMux()
	routes.Register(mux, sys.Handler().Routes())
	return mux
}

func TestParseStage(t *testing.T) {
	tests := []struct {
		in      string
		want    prompts.Stage
		wantErr bool
	}{
		{"transcribe", prompts.StageTranscribe, false},
		{"draft", prompts.StageDraft, false},
		{"adjust", prompts.StageAdjust, false},
		{"classify", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := prompts.ParseStage(tt.in)
			if tt.wantErr {
				if !errors.Is(err, prompts.ErrInvalidStage) {
					t.Errorf("err = %v, want ErrInvalidStage", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseStage(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestStageUnmarshalJSON(t *testing.T) {
	var cmd prompts.CreateCommand
	if err := json.Unmarshal([]byte(`{"name":"x","stage":"draft","instructions":"y"}`), &cmd); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if cmd.Stage != prompts.StageDraft {
		t.Errorf("Stage = %q", cmd.Stage)
	}

	err := json.Unmarshal([]byte(`{"stage":"finalize"}`), &cmd)
	if !errors.Is(err, prompts.ErrInvalidStage) {
		t.Errorf("err = %v, want ErrInvalidStage", err)
	}
}

func TestDefaultsCoverEveryStage(t *testing.T) {
	ctx := context.Background()
	var d prompts.Defaults

	for _, stage := range prompts.Stages() {
		inst, err := d.Instructions(ctx, stage)
		if err != nil || inst == "" {
			t.Errorf("Instructions(%s) = %q, %v", stage, inst, err)
		}
		spec, err := d.Spec(ctx, stage)
		if err != nil || spec == "" {
			t.Errorf("Spec(%s) = %q, %v", stage, spec, err)
		}
	}

	if _, err := d.Instructions(ctx, "bogus"); !errors.Is(err, prompts.ErrInvalidStage) {
		t.Errorf("err = %v, want ErrInvalidStage", err)
	}
}

func TestFiltersFromQuery(t *testing.T) {
	f := prompts.FiltersFromQuery(url.Values{
		"stage":  {"adjust"},
		"name":   {"strict"},
		"active": {"true"},
	})

	if f.Stage == nil || *f.Stage != prompts.StageAdjust {
		t.Errorf("Stage = %v", f.Stage)
	}
	if f.Name == nil || *f.Name != "strict" {
		t.Errorf("Name = %v", f.Name)
	}
	if f.Active == nil || !*f.Active {
		t.Errorf("Active = %v", f.Active)
	}

	empty := prompts.FiltersFromQuery(url.Values{"stage": {"bogus"}, "active": {"maybe"}})
	if empty.Stage != nil || empty.Active != nil {
		t.Errorf("invalid values should be ignored: %+v", empty)
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{prompts.ErrNotFound, http.StatusNotFound},
		{prompts.ErrDuplicate, http.StatusConflict},
		{prompts.ErrInvalidStage, http.StatusBadRequest},
		{prompts.ErrEmptyName, http.StatusBadRequest},
		{prompts.ErrEmpty, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := prompts.MapHTTPStatus(tt.err); got != tt.want {
			t.Errorf("MapHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHandlerInstructions(t *testing.T) {
	sys := &mockSystem{
		instructions: func(_ context.Context, stage prompts.Stage) (string, error) {
			return "override for " + string(stage), nil
		},
	}

	rec := httptest.NewRecorder()
	serve(sys).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prompts/draft/instructions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var got prompts.StageContent
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Stage != prompts.StageDraft || got.Content != "override for draft" {
		t.Errorf("got %+v", got)
	}
}

func TestHandlerInstructionsInvalidStage(t *testing.T) {
	rec := httptest.NewRecorder()
	serve(&mockSystem{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prompts/classify/instructions", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandlerCreate(t *testing.T) {
	id := uuid.New()
	sys := &mockSystem{
		create: func(_ context.Context, cmd prompts.CreateCommand) (*prompts.Prompt, error) {
			if cmd.Name == "taken" {
				return nil, prompts.ErrDuplicate
			}
			return &prompts.Prompt{ID: id, Name: cmd.Name, Stage: cmd.Stage, Instructions: cmd.Instructions}, nil
		},
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"created", `{"name":"strict","stage":"draft","instructions":"be strict"}`, http.StatusCreated},
		{"duplicate", `{"name":"taken","stage":"draft","instructions":"x"}`, http.StatusConflict},
		{"bad stage", `{"name":"x","stage":"classify","instructions":"x"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/prompts", strings.NewReader(tt.body))
			serve(sys).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestHandlerFindNotFound(t *testing.T) {
	sys := &mockSystem{
		find: func(context.Context, uuid.UUID) (*prompts.Prompt, error) {
			return nil, prompts.ErrNotFound
		},
	}

	rec := httptest.NewRecorder()
	serve(sys).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prompts/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	serve(sys).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prompts/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandlerListPassesFilters(t *testing.T) {
	var gotPage pagination.PageRequest
	var gotFilters prompts.Filters

	sys := &mockSystem{
		list: func(_ context.Context, page pagination.PageRequest, f prompts.Filters) (*pagination.PageResult[prompts.Prompt], error) {
			gotPage, gotFilters = page, f
			result := pagination.NewPageResult([]prompts.Prompt{}, 0, page.Page, page.PageSize)
			return &result, nil
		},
	}

	rec := httptest.NewRecorder()
	serve(sys).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prompts?stage=transcribe&page_size=500", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotPage.PageSize != 50 {
		t.Errorf("PageSize = %d, want clamp to 50", gotPage.PageSize)
	}
	if gotFilters.Stage == nil || *gotFilters.Stage != prompts.StageTranscribe {
		t.Errorf("Stage filter = %v", gotFilters.Stage)
	}
}

func TestHandlerActivate(t *testing.T) {
	id := uuid.New()
	sys := &mockSystem{
		activate: func(_ context.Context, got uuid.UUID) (*prompts.Prompt, error) {
			return &prompts.Prompt{ID: got, Stage: prompts.StageAdjust, Active: true}, nil
		},
	}

	rec := httptest.NewRecorder()
	serve(sys).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/prompts/"+id.String()+"/activate", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var p prompts.Prompt
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ID != id || !p.Active {
		t.Errorf("prompt = %+v", p)
	}
}
