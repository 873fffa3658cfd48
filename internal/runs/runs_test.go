package runs_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/taxdraft/internal/runs"
	"github.com/JaimeStill/taxdraft/internal/workflow"
	"github.com/JaimeStill/taxdraft/pkg/engine"
	"github.com/JaimeStill/taxdraft/pkg/pagination"
	"github.com/JaimeStill/taxdraft/pkg/provenance"
	"github.com/JaimeStill/taxdraft/pkg/routes"
)

type mockSystem struct {
	execute    func(ctx context.Context, uploads []runs.Upload) (*runs.Run, error)
	list       func(ctx context.Context, page pagination.PageRequest, f runs.Filters) (*pagination.PageResult[runs.Run], error)
	find       func(ctx context.Context, id uuid.UUID) (*runs.Run, error)
	progress   func(ctx context.Context, id uuid.UUID) ([]engine.Event, error)
	records    func(ctx context.Context, id uuid.UUID, page pagination.PageRequest, f runs.RecordFilters) (*pagination.PageResult[runs.Record], error)
	export     func(ctx context.Context, id uuid.UUID) ([]provenance.Entry, error)
	confidence func(ctx context.Context, id uuid.UUID) (map[string]float64, error)
	remove     func(ctx context.Context, id uuid.UUID) error
}

func (m *mockSystem) Handler(maxUploadSize int64) *runs.Handler {
	return runs.NewHandler(
		m,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		pagination.Config{DefaultPageSize: 20, MaxPageSize: 100},
		maxUploadSize,
	)
}

func (m *mockSystem) Execute(ctx context.Context, uploads []runs.Upload) (*runs.Run, error) {
	return m.execute(ctx, uploads)
}

func (m *mockSystem) List(ctx context.Context, page pagination.PageRequest, f runs.Filters) (*pagination.PageResult[runs.Run], error) {
	return m.list(ctx, page, f)
}

func (m *mockSystem) Find(ctx context.Context, id uuid.UUID) (*runs.Run, error) {
	return m.find(ctx, id)
}

func (m *mockSystem) Progress(ctx context.Context, id uuid.UUID) ([]engine.Event, error) {
	return m.progress(ctx, id)
}

func (m *mockSystem) Provenance(ctx context.Context, id uuid.UUID, page pagination.PageRequest, f runs.RecordFilters) (*pagination.PageResult[runs.Record], error) {
	return m.records(ctx, id, page, f)
}

func (m *mockSystem) Export(ctx context.Context, id uuid.UUID) ([]provenance.Entry, error) {
	return m.export(ctx, id)
}

func (m *mockSystem) Confidence(ctx context.Context, id uuid.UUID) (map[string]float64, error) {
	return m.confidence(ctx, id)
}

func (m *mockSystem) Delete(ctx context.Context, id uuid.UUID) error {
	return m.remove(ctx, id)
}

func serve(sys runs.System) *http.ServeMux {
	mux := http.NewServeMux()
	routes.Register(mux, sys.Handler(1<<20).Routes())
	return mux
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHandlerCreate(t *testing.T) {
	id := uuid.New()
	var got []runs.Upload

	sys := &mockSystem{
		execute: func(_ context.Context, uploads []runs.Upload) (*runs.Run, error) {
			got = uploads
			return &runs.Run{ID: id, Status: runs.StatusCompleted}, nil
		},
	}

	body, contentType := multipartBody(t, map[string]string{
		"ledger.csv": "Account,Debit,Credit\nGross receipts,0,1000\n",
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs", body)
	req.Header.Set("Content-Type", contentType)
	serve(sys).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var run runs.Run
	if err := json.NewDecoder(rec.Body).Decode(&run); err != nil {
		t.Fatal(err)
	}
	if run.ID != id || run.Status != runs.StatusCompleted {
		t.Errorf("run = %+v", run)
	}

	if len(got) != 1 {
		t.Fatalf("uploads = %d, want 1", len(got))
	}
	if got[0].Name != "ledger.csv" || !strings.HasPrefix(got[0].ContentType, "text/plain") {
		t.Errorf("upload = %s %s", got[0].Name, got[0].ContentType)
	}
	if got[0].PageCount != nil {
		t.Error("page count set for a non-PDF upload")
	}
}

func TestHandlerCreateErrors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		execErr error
		want    int
	}{
		{"no files", map[string]string{}, nil, http.StatusBadRequest},
		{"empty upload", map[string]string{"a.csv": "x"}, runs.ErrInvalidFile, http.StatusBadRequest},
		{"execution failure", map[string]string{"a.csv": "x"}, errors.Join(runs.ErrExecute, errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := &mockSystem{
				execute: func(context.Context, []runs.Upload) (*runs.Run, error) {
					return nil, tt.execErr
				},
			}

			body, contentType := multipartBody(t, tt.files)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/runs", body)
			req.Header.Set("Content-Type", contentType)
			serve(sys).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestHandlerListPassesFilters(t *testing.T) {
	var gotPage pagination.PageRequest
	var gotFilters runs.Filters

	sys := &mockSystem{
		list: func(_ context.Context, page pagination.PageRequest, f runs.Filters) (*pagination.PageResult[runs.Run], error) {
			gotPage, gotFilters = page, f
			result := pagination.NewPageResult([]runs.Run{}, 0, page.Page, page.PageSize)
			return &result, nil
		},
	}

	rec := httptest.NewRecorder()
	serve(sys).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?status=halted&page=2&sort=-StartedAt", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotPage.Page != 2 || gotPage.PageSize != 20 {
		t.Errorf("page = %+v", gotPage)
	}
	if len(gotPage.Sort) != 1 || !gotPage.Sort[0].Descending {
		t.Errorf("sort = %+v", gotPage.Sort)
	}
	if gotFilters.Status == nil || *gotFilters.Status != runs.StatusHalted {
		t.Errorf("status filter = %v", gotFilters.Status)
	}
}

func TestHandlerFind(t *testing.T) {
	known := uuid.New()
	sys := &mockSystem{
		find: func(_ context.Context, id uuid.UUID) (*runs.Run, error) {
			if id != known {
				return nil, runs.ErrNotFound
			}
			return &runs.Run{ID: id}, nil
		},
	}

	tests := []struct {
		path string
		want int
	}{
		{"/runs/" + known.String(), http.StatusOK},
		{"/runs/" + uuid.NewString(), http.StatusNotFound},
		{"/runs/not-a-uuid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			serve(sys).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandlerProgress(t *testing.T) {
	d := 2 * time.Second
	sys := &mockSystem{
		progress: func(context.Context, uuid.UUID) ([]engine.Event, error) {
			return []engine.Event{
				{Step: "ExtractData", Number: 1, Total: 4, Status: engine.StatusCompleted, ExecutionTime: &d},
				{Step: "DraftForms", Number: 2, Total: 4, Status: engine.StatusRunning},
			}, nil
		},
	}

	rec := httptest.NewRecorder()
	serve(sys).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+uuid.NewString()+"/progress", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var events []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[1]["step"] != "DraftForms" {
		t.Errorf("events = %v", events)
	}
}

func TestHandlerProvenancePassesFilters(t *testing.T) {
	var gotFilters runs.RecordFilters
	sys := &mockSystem{
		records: func(_ context.Context, _ uuid.UUID, page pagination.PageRequest, f runs.RecordFilters) (*pagination.PageResult[runs.Record], error) {
			gotFilters = f
			result := pagination.NewPageResult([]runs.Record{{Seq: 1, Field: "gross_receipts"}}, 1, page.Page, page.PageSize)
			return &result, nil
		},
	}

	rec := httptest.NewRecorder()
	path := "/runs/" + uuid.NewString() + "/provenance?step=ExtractData&field=gross_receipts&source_ref=ledger"
	serve(sys).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotFilters.Step == nil || *gotFilters.Step != "ExtractData" {
		t.Errorf("step = %v", gotFilters.Step)
	}
	if gotFilters.Field == nil || *gotFilters.Field != "gross_receipts" {
		t.Errorf("field = %v", gotFilters.Field)
	}
	if gotFilters.SourceRef == nil || *gotFilters.SourceRef != "ledger" {
		t.Errorf("source_ref = %v", gotFilters.SourceRef)
	}
}

func TestHandlerExport(t *testing.T) {
	entries := []provenance.Entry{
		{Step: "ExtractData", Field: "gross_receipts", Value: 1000.0, SourceRef: "dataframe_extraction", Confidence: 0.95, Timestamp: "2026-01-02T03:04:05.000000006Z"},
		{Step: "Diagnostics", Field: "diagnostic_summary", Value: "Found 0 issues", SourceRef: "diagnostic_step", Confidence: 0.95, Timestamp: "2026-01-02T03:04:06Z", Metadata: map[string]any{"total_issues": 0}},
	}
	sys := &mockSystem{
		export: func(context.Context, uuid.UUID) ([]provenance.Entry, error) {
			return entries, nil
		},
	}
	base := "/runs/" + uuid.NewString() + "/provenance/export"

	t.Run("json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		serve(sys).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base, nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got []provenance.Entry
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].Field != "gross_receipts" {
			t.Errorf("entries = %+v", got)
		}
	})

	t.Run("csv", func(t *testing.T) {
		rec := httptest.NewRecorder()
		serve(sys).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base+"?format=csv", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, runs.ExportFilename) {
			t.Errorf("Content-Disposition = %q", cd)
		}

		rows, err := csv.NewReader(rec.Body).ReadAll()
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 3 {
			t.Fatalf("rows = %d, want header + 2", len(rows))
		}
		if strings.Join(rows[0], ",") != strings.Join(provenance.CSVHeader, ",") {
			t.Errorf("header = %v", rows[0])
		}
		if rows[2][1] != "diagnostic_summary" || rows[2][2] != "Found 0 issues" {
			t.Errorf("row = %v", rows[2])
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		rec := httptest.NewRecorder()
		serve(sys).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base+"?format=xml", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandlerConfidenceAndDelete(t *testing.T) {
	deleted := uuid.Nil
	sys := &mockSystem{
		confidence: func(context.Context, uuid.UUID) (map[string]float64, error) {
			return map[string]float64{"gross_receipts": 0.875}, nil
		},
		remove: func(_ context.Context, id uuid.UUID) error {
			deleted = id
			return nil
		},
	}
	id := uuid.New()

	rec := httptest.NewRecorder()
	serve(sys).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+id.String()+"/confidence", nil))
	var summary map[string]float64
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatal(err)
	}
	if summary["gross_receipts"] != 0.875 {
		t.Errorf("summary = %v", summary)
	}

	rec = httptest.NewRecorder()
	serve(sys).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/runs/"+id.String(), nil))
	if rec.Code != http.StatusNoContent || deleted != id {
		t.Errorf("status = %d, deleted = %s", rec.Code, deleted)
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{runs.ErrNotFound, http.StatusNotFound},
		{runs.ErrDuplicate, http.StatusConflict},
		{runs.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{runs.ErrNoFiles, http.StatusBadRequest},
		{runs.ErrInvalidFormat, http.StatusBadRequest},
		{runs.ErrExecute, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := runs.MapHTTPStatus(tt.err); got != tt.want {
			t.Errorf("MapHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		res  workflow.Result
		want string
	}{
		{"completed", workflow.Result{Progress: engine.Progress{Total: 4, Completed: 4}}, runs.StatusCompleted},
		{"failed step", workflow.Result{Progress: engine.Progress{Total: 4, Completed: 3, Failed: 1}}, runs.StatusFailed},
		{"halted", workflow.Result{Halted: true, Progress: engine.Progress{Total: 4, Completed: 1, Failed: 1}}, runs.StatusHalted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runs.Status(&tt.res); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}
}
