package openapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/taxdraft/pkg/openapi"
)

func TestConfigDefaultsAndEnv(t *testing.T) {
	var cfg openapi.Config
	if err := cfg.Finalize(nil); err != nil {
		t.Fatal(err)
	}
	if cfg.Title != "Taxdraft API" || cfg.Description == "" {
		t.Errorf("defaults = %+v", cfg)
	}

	t.Setenv("TEST_OPENAPI_TITLE", "Drafts")
	cfg = openapi.Config{}
	if err := cfg.Finalize(&openapi.ConfigEnv{Title: "TEST_OPENAPI_TITLE"}); err != nil {
		t.Fatal(err)
	}
	if cfg.Title != "Drafts" {
		t.Errorf("title = %s, want Drafts", cfg.Title)
	}

	cfg.Merge(&openapi.Config{Description: "overlay"})
	if cfg.Title != "Drafts" || cfg.Description != "overlay" {
		t.Errorf("merged = %+v", cfg)
	}
}

func TestAddPatterns(t *testing.T) {
	spec := openapi.NewSpec(&openapi.Config{Title: "T"}, "1.0.0")
	spec.AddPatterns(
		"GET /runs",
		"POST /runs",
		"GET /runs/{id}",
		"DELETE /runs/{id}",
		"GET /storage/download/{key...}",
		"malformed",
	)

	if len(spec.Paths) != 3 {
		t.Fatalf("paths = %d, want 3", len(spec.Paths))
	}

	runs := spec.Paths["/runs"]
	if runs.Get == nil || runs.Post == nil {
		t.Fatalf("/runs = %+v", runs)
	}
	if runs.Post.Responses[http.StatusCreated] == nil {
		t.Error("POST missing 201 response")
	}
	if runs.Get.Tags[0] != "runs" || runs.Get.OperationID != "getRuns" {
		t.Errorf("GET /runs = %+v", runs.Get)
	}

	if runs.Post.RequestBody == nil || runs.Post.RequestBody.Content["application/json"] == nil {
		t.Errorf("POST /runs body = %+v", runs.Post.RequestBody)
	}
	if !spec.SetRequestBody("POST /runs", openapi.MultipartFiles("files")) {
		t.Fatal("SetRequestBody did not find POST /runs")
	}
	if runs.Post.RequestBody.Content["multipart/form-data"] == nil {
		t.Error("multipart body not applied")
	}
	if spec.SetRequestBody("PUT /runs", openapi.JSONBody()) {
		t.Error("SetRequestBody reported success for an unregistered method")
	}

	byID := spec.Paths["/runs/{id}"]
	if byID.Delete == nil || byID.Delete.Responses[http.StatusNoContent] == nil {
		t.Errorf("DELETE /runs/{id} = %+v", byID.Delete)
	}
	if p := byID.Get.Parameters; len(p) != 1 || p[0].Schema.Format != "uuid" || !p[0].Required {
		t.Errorf("id parameter = %+v", p)
	}
	if byID.Get.Responses[http.StatusNotFound].Ref != "#/components/responses/NotFound" {
		t.Error("missing NotFound ref")
	}

	download, ok := spec.Paths["/storage/download/{key}"]
	if !ok {
		t.Fatalf("wildcard path not normalized: %v", spec.Paths)
	}
	if download.Get.Parameters[0].Name != "key" || download.Get.Parameters[0].Schema.Format != "" {
		t.Errorf("key parameter = %+v", download.Get.Parameters[0])
	}
}

func TestServeSpec(t *testing.T) {
	spec := openapi.NewSpec(&openapi.Config{Title: "T", Description: "D"}, "2.0.0")
	spec.AddServer("/api")
	spec.AddPatterns("GET /prompts")

	data, err := openapi.MarshalJSON(spec)
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	openapi.ServeSpec(data)(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	var doc map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if doc["openapi"] != "3.1.0" {
		t.Errorf("openapi = %v", doc["openapi"])
	}
	info := doc["info"].(map[string]any)
	if info["version"] != "2.0.0" || info["description"] != "D" {
		t.Errorf("info = %v", info)
	}
	servers := doc["servers"].([]any)
	if servers[0].(map[string]any)["url"] != "/api" {
		t.Errorf("servers = %v", servers)
	}
}
