package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/taxdraft/internal/config"
	"github.com/JaimeStill/taxdraft/internal/infrastructure"
	"github.com/JaimeStill/taxdraft/internal/progress"
	"github.com/JaimeStill/taxdraft/internal/reasoning"
	"github.com/JaimeStill/taxdraft/internal/workflow"
	"github.com/JaimeStill/taxdraft/pkg/database"
	"github.com/JaimeStill/taxdraft/pkg/lifecycle"
	"github.com/JaimeStill/taxdraft/pkg/middleware"
	"github.com/JaimeStill/taxdraft/pkg/pagination"
	"github.com/JaimeStill/taxdraft/pkg/routes"
	"github.com/JaimeStill/taxdraft/pkg/storage"
)

type fakeStore struct {
	blobs map[string]string
}

func (s *fakeStore) Start(*lifecycle.Coordinator) error { return nil }

func (s *fakeStore) Upload(context.Context, string, io.Reader, string) error { return nil }

func (s *fakeStore) Download(_ context.Context, key string) (io.ReadCloser, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}
	data, ok := s.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (s *fakeStore) Delete(context.Context, string) error { return nil }

func (s *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.blobs[key]
	return ok, nil
}

func (s *fakeStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func serveStorage(store storage.System) *http.ServeMux {
	mux := http.NewServeMux()
	h := newStorageHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	routes.Register(mux, h.routes())
	return mux
}

func TestStorageList(t *testing.T) {
	store := &fakeStore{blobs: map[string]string{
		"runs/a/ledger.csv": "x",
		"runs/b/w2.pdf":     "y",
	}}

	rec := httptest.NewRecorder()
	serveStorage(store).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/storage?prefix=runs/a/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got listResult
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Prefix != "runs/a/" || len(got.Keys) != 1 || got.Keys[0] != "runs/a/ledger.csv" {
		t.Errorf("list = %+v", got)
	}

	rec = httptest.NewRecorder()
	serveStorage(store).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/storage?prefix=none/", nil))
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"keys":[]`)) {
		t.Errorf("empty list body = %s", rec.Body)
	}
}

func TestStorageDownload(t *testing.T) {
	store := &fakeStore{blobs: map[string]string{"runs/a/ledger.csv": "Account,Debit,Credit\n"}}

	tests := []struct {
		name        string
		path        string
		status      int
		contentType string
	}{
		{"found", "/storage/download/runs/a/ledger.csv", http.StatusOK, "text/csv"},
		{"missing", "/storage/download/runs/a/other.csv", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			serveStorage(store).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.contentType == "" {
				return
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.contentType) {
				t.Errorf("Content-Type = %q", ct)
			}
			if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `"ledger.csv"`) {
				t.Errorf("Content-Disposition = %q", cd)
			}
			if rec.Body.String() != store.blobs["runs/a/ledger.csv"] {
				t.Errorf("body = %q", rec.Body)
			}
		})
	}
}

func moduleConfig() *config.Config {
	return &config.Config{
		Database: database.Config{
			Host:            "localhost",
			Port:            5432,
			Name:            "taxdraft",
			User:            "taxdraft",
			Password:        "taxdraft",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    1,
			ConnMaxLifetime: "15m",
			ConnTimeout:     "5s",
		},
		Storage: storage.Config{
			ContainerName:    "documents",
			ConnectionString: "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;",
		},
		API: config.APIConfig{
			BasePath:   "/api",
			CORS:       middleware.CORSConfig{},
			Pagination: pagination.Config{DefaultPageSize: 20, MaxPageSize: 100},
		},
		Reasoning: reasoning.Config{
			Providers: []string{reasoning.ProviderOpenAI},
			OpenAI:    reasoning.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini"},
		},
		Workflow: workflow.Config{Policy: workflow.PolicyContinue},
		Progress: progress.Config{Addr: "localhost:6379", Prefix: "taxdraft:progress", TTL: "1h"},
	}
}

func TestNewModuleRoutes(t *testing.T) {
	cfg := moduleConfig()
	infra, err := infrastructure.New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	m, err := NewModule(context.Background(), cfg, infra)
	if err != nil {
		t.Fatalf("NewModule() error = %v", err)
	}
	if m.Prefix() != "/api" {
		t.Errorf("prefix = %s", m.Prefix())
	}

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/runs/not-a-uuid", http.StatusBadRequest},
		{http.MethodGet, "/api/runs/not-a-uuid/provenance/export", http.StatusBadRequest},
		{http.MethodGet, "/api/prompts/not-a-uuid", http.StatusBadRequest},
		{http.MethodGet, "/api/openapi.json", http.StatusOK},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			m.Serve(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestNewModuleRejectsUnknownProvider(t *testing.T) {
	cfg := moduleConfig()
	cfg.Reasoning.Providers = []string{"unknown"}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewModule(context.Background(), cfg, infra); err == nil {
		t.Error("expected error for unknown provider")
	}
}
