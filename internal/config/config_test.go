package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/JaimeStill/taxdraft/internal/config"
	"github.com/JaimeStill/taxdraft/internal/reasoning"
	"github.com/JaimeStill/taxdraft/internal/workflow"
)

const baseConfig = `
shutdown_timeout = "30s"
version = "0.1.0"

[server]
host = "0.0.0.0"
port = 8080
read_timeout = "1m"
write_timeout = "15m"
shutdown_timeout = "30s"

[database]
host = "localhost"
port = 5432
name = "taxdraft"
user = "taxdraft"
password = "taxdraft"
ssl_mode = "disable"
max_open_conns = 25
max_idle_conns = 5
conn_max_lifetime = "15m"
conn_timeout = "5s"

[storage]
container_name = "documents"
connection_string = "DefaultEndpointsProtocol=http;AccountName=devstore;AccountKey=key;BlobEndpoint=http://127.0.0.1:10000/devstore;"

[api]
base_path = "/api"
max_upload_size = "20MB"

[api.cors]
enabled = false

[api.pagination]
default_page_size = 25
max_page_size = 50

[reasoning]
providers = ["anthropic", "openai"]
rate_limit = 1.5

[reasoning.anthropic]
api_key = "sk-ant-test"

[reasoning.openai]
api_key = "sk-test"
model = "gpt-4o-mini"

[workflow]
policy = "halt_on_cancel"
prompt_text_limit = 4000

[progress]
addr = "redis:6379"
ttl = "1h"
`

const overlayConfig = `
[server]
port = 9090

[database]
host = "prodhost"

[workflow]
demo_defaults = true
`

func writeConfig(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	t.Chdir(dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("db host: got %s, want localhost", cfg.Database.Host)
	}
	if cfg.Storage.ContainerName != "documents" {
		t.Errorf("storage container: got %s, want documents", cfg.Storage.ContainerName)
	}
	if cfg.API.MaxUploadSizeBytes() != 20*1024*1024 {
		t.Errorf("max upload: got %d, want 20MB", cfg.API.MaxUploadSizeBytes())
	}
	if cfg.API.Pagination.MaxPageSize != 50 {
		t.Errorf("pagination max_page_size: got %d, want 50", cfg.API.Pagination.MaxPageSize)
	}
	if !slices.Equal(cfg.Reasoning.Providers, []string{reasoning.ProviderAnthropic, reasoning.ProviderOpenAI}) {
		t.Errorf("providers: got %v", cfg.Reasoning.Providers)
	}
	if cfg.Reasoning.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("openai model: got %s", cfg.Reasoning.OpenAI.Model)
	}
	if cfg.Workflow.Policy != workflow.PolicyHaltOnCancel || cfg.Workflow.PromptTextLimit != 4000 {
		t.Errorf("workflow: got %+v", cfg.Workflow)
	}
	if cfg.Workflow.COGSRatioThreshold != 0.8 {
		t.Errorf("cogs threshold default: got %g, want 0.8", cfg.Workflow.COGSRatioThreshold)
	}
	if cfg.Progress.Addr != "redis:6379" || cfg.Progress.TTLDuration() != time.Hour {
		t.Errorf("progress: got %+v", cfg.Progress)
	}
}

func TestLoadWithOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	writeConfig(t, dir, "config.staging.toml", overlayConfig)
	t.Chdir(dir)

	t.Setenv(config.EnvTaxdraftEnv, "staging")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port: got %d, want 9090 (from overlay)", cfg.Server.Port)
	}
	if cfg.Database.Host != "prodhost" {
		t.Errorf("db host: got %s, want prodhost (from overlay)", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("db port: got %d, want 5432 (from base)", cfg.Database.Port)
	}
	if !cfg.Workflow.DemoDefaults {
		t.Error("demo_defaults: want true (from overlay)")
	}
	if cfg.Workflow.PromptTextLimit != 4000 {
		t.Errorf("prompt_text_limit: got %d, want 4000 (from base)", cfg.Workflow.PromptTextLimit)
	}
}

func TestLoadEnvVarOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	t.Chdir(dir)

	t.Setenv("TAXDRAFT_VERSION", "2.0.0")
	t.Setenv("TAXDRAFT_SERVER_PORT", "3000")
	t.Setenv("TAXDRAFT_WORKFLOW_POLICY", "halt")
	t.Setenv("TAXDRAFT_REDIS_DB", "2")
	t.Setenv("TAXDRAFT_AUTH_ENABLED", "true")
	t.Setenv("TAXDRAFT_AUTH_ISSUER", "https://login.example.com")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Version != "2.0.0" {
		t.Errorf("version: got %s, want 2.0.0", cfg.Version)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("server port: got %d, want 3000", cfg.Server.Port)
	}
	if cfg.Workflow.Policy != workflow.PolicyHalt {
		t.Errorf("policy: got %s, want halt", cfg.Workflow.Policy)
	}
	if cfg.Progress.DB != 2 {
		t.Errorf("redis db: got %d, want 2", cfg.Progress.DB)
	}
	if !cfg.API.Auth.Enabled || cfg.API.Auth.Issuer != "https://login.example.com" {
		t.Errorf("auth: got %+v", cfg.API.Auth)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("TAXDRAFT_DB_URL", "postgres://taxdraft@localhost/taxdraft")
	t.Setenv("TAXDRAFT_STORAGE_CONNECTION_STRING", "conn")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	t.Setenv("TAXDRAFT_REASONING_PROVIDERS", "anthropic")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load without config.toml failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port default: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.ConnectionString != "conn" {
		t.Errorf("storage conn from env: got %s, want conn", cfg.Storage.ConnectionString)
	}
	if cfg.Reasoning.Anthropic.APIKey != "sk-ant-env" {
		t.Errorf("anthropic key from env: got %s", cfg.Reasoning.Anthropic.APIKey)
	}
	if cfg.Workflow.Policy != workflow.PolicyContinue {
		t.Errorf("policy default: got %s, want continue", cfg.Workflow.Policy)
	}
}

func TestLoadWorkflow(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("TAXDRAFT_REASONING_PROVIDERS", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := config.LoadWorkflow()
	if err != nil {
		t.Fatalf("load workflow without database or storage failed: %v", err)
	}
	if cfg.Reasoning.OpenAI.APIKey != "sk-env" {
		t.Errorf("openai key: got %s", cfg.Reasoning.OpenAI.APIKey)
	}
	if cfg.Workflow.PromptTextLimit != 2000 {
		t.Errorf("prompt_text_limit default: got %d, want 2000", cfg.Workflow.PromptTextLimit)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{name: "invalid toml", content: `server = {`},
		{
			name:    "invalid shutdown timeout",
			content: baseConfig,
			env:     map[string]string{config.EnvTaxdraftShutdownTimeout: "soon"},
		},
		{
			name:    "auth without issuer",
			content: baseConfig,
			env:     map[string]string{"TAXDRAFT_AUTH_ENABLED": "true"},
		},
		{name: "invalid policy", content: `
[database]
url = "postgres://localhost/taxdraft"
[storage]
connection_string = "conn"
[reasoning]
providers = ["openai"]
[reasoning.openai]
api_key = "k"
[workflow]
policy = "sometimes"
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, config.BaseConfigFile, tt.content)
			t.Chdir(dir)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			if _, err := config.Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEnv(t *testing.T) {
	cfg := &config.Config{}
	if cfg.Env() != "local" {
		t.Errorf("env: got %s, want local", cfg.Env())
	}

	t.Setenv(config.EnvTaxdraftEnv, "production")
	if cfg.Env() != "production" {
		t.Errorf("env: got %s, want production", cfg.Env())
	}
}

func TestShutdownTimeoutDuration(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	t.Chdir(dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if got := cfg.ShutdownTimeoutDuration(); got != 30*time.Second {
		t.Errorf("shutdown timeout: got %s, want 30s", got)
	}
}
