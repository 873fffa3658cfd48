package config

import (
	"fmt"
	"os"
	"time"

	"github.com/JaimeStill/taxdraft/internal/progress"
	"github.com/JaimeStill/taxdraft/internal/reasoning"
	"github.com/JaimeStill/taxdraft/internal/workflow"
	"github.com/JaimeStill/taxdraft/pkg/database"
	"github.com/JaimeStill/taxdraft/pkg/storage"
	"github.com/pelletier/go-toml/v2"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvTaxdraftEnv             = "TAXDRAFT_ENV"
	EnvTaxdraftShutdownTimeout = "TAXDRAFT_SHUTDOWN_TIMEOUT"
	EnvTaxdraftVersion         = "TAXDRAFT_VERSION"
)

var databaseEnv = &database.Env{
	URL:             "TAXDRAFT_DB_URL",
	Host:            "TAXDRAFT_DB_HOST",
	Port:            "TAXDRAFT_DB_PORT",
	Name:            "TAXDRAFT_DB_NAME",
	User:            "TAXDRAFT_DB_USER",
	Password:        "TAXDRAFT_DB_PASSWORD",
	SSLMode:         "TAXDRAFT_DB_SSL_MODE",
	MaxOpenConns:    "TAXDRAFT_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "TAXDRAFT_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "TAXDRAFT_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "TAXDRAFT_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "TAXDRAFT_STORAGE_CONTAINER_NAME",
	ConnectionString: "TAXDRAFT_STORAGE_CONNECTION_STRING",
	ServiceURL:       "TAXDRAFT_STORAGE_SERVICE_URL",
	MaxListSize:      "TAXDRAFT_STORAGE_MAX_LIST_SIZE",
}

var reasoningEnv = &reasoning.Env{
	Providers:       "TAXDRAFT_REASONING_PROVIDERS",
	RateLimit:       "TAXDRAFT_REASONING_RATE_LIMIT",
	Burst:           "TAXDRAFT_REASONING_BURST",
	Timeout:         "TAXDRAFT_REASONING_TIMEOUT",
	AgentName:       "TAXDRAFT_AGENT_NAME",
	AgentProvider:   "TAXDRAFT_AGENT_PROVIDER_NAME",
	AgentBaseURL:    "TAXDRAFT_AGENT_BASE_URL",
	AgentModel:      "TAXDRAFT_AGENT_MODEL_NAME",
	AgentToken:      "TAXDRAFT_AGENT_TOKEN",
	AgentDeployment: "TAXDRAFT_AGENT_DEPLOYMENT",
	AgentAPIVersion: "TAXDRAFT_AGENT_API_VERSION",
	AgentAuthType:   "TAXDRAFT_AGENT_AUTH_TYPE",
	AnthropicAPIKey: "ANTHROPIC_API_KEY",
	AnthropicModel:  "TAXDRAFT_ANTHROPIC_MODEL",
	OpenAIAPIKey:    "OPENAI_API_KEY",
	OpenAIBaseURL:   "TAXDRAFT_OPENAI_BASE_URL",
	OpenAIModel:     "TAXDRAFT_OPENAI_MODEL",
}

var workflowEnv = &workflow.Env{
	Policy:              "TAXDRAFT_WORKFLOW_POLICY",
	PromptTextLimit:     "TAXDRAFT_WORKFLOW_PROMPT_TEXT_LIMIT",
	COGSRatioThreshold:  "TAXDRAFT_WORKFLOW_COGS_RATIO_THRESHOLD",
	MathTolerance:       "TAXDRAFT_WORKFLOW_MATH_TOLERANCE",
	LargeValueThreshold: "TAXDRAFT_WORKFLOW_LARGE_VALUE_THRESHOLD",
	DemoDefaults:        "TAXDRAFT_WORKFLOW_DEMO_DEFAULTS",
	ExtractWorkers:      "TAXDRAFT_WORKFLOW_EXTRACT_WORKERS",
}

var progressEnv = &progress.Env{
	Addr:           "TAXDRAFT_REDIS_ADDR",
	Password:       "TAXDRAFT_REDIS_PASSWORD",
	DB:             "TAXDRAFT_REDIS_DB",
	Prefix:         "TAXDRAFT_PROGRESS_PREFIX",
	TTL:            "TAXDRAFT_PROGRESS_TTL",
	PublishTimeout: "TAXDRAFT_PROGRESS_PUBLISH_TIMEOUT",
}

// Config is the root configuration for the taxdraft service.
type Config struct {
	Server          ServerConfig     `toml:"server"`
	Database        database.Config  `toml:"database"`
	Storage         storage.Config   `toml:"storage"`
	API             APIConfig        `toml:"api"`
	Reasoning       reasoning.Config `toml:"reasoning"`
	Workflow        workflow.Config  `toml:"workflow"`
	Progress        progress.Config  `toml:"progress"`
	ShutdownTimeout string           `toml:"shutdown_timeout"`
	Version         string           `toml:"version"`
}

// Env returns the TAXDRAFT_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvTaxdraftEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// LoadWorkflow reads the same files as Load but finalizes only the
// reasoning and workflow sections. The CLI runs without a database,
// blob storage or Redis.
func LoadWorkflow() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}

	cfg.loadDefaults()
	cfg.loadEnv()

	if err := cfg.Reasoning.Finalize(reasoningEnv); err != nil {
		return nil, fmt.Errorf("finalize config: reasoning: %w", err)
	}
	if err := cfg.Workflow.Finalize(workflowEnv); err != nil {
		return nil, fmt.Errorf("finalize config: workflow: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Reasoning.Merge(&overlay.Reasoning)
	c.Workflow.Merge(&overlay.Workflow)
	c.Progress.Merge(&overlay.Progress)
}

func read() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	return cfg, nil
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Reasoning.Finalize(reasoningEnv); err != nil {
		return fmt.Errorf("reasoning: %w", err)
	}
	if err := c.Workflow.Finalize(workflowEnv); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	if err := c.Progress.Finalize(progressEnv); err != nil {
		return fmt.Errorf("progress: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvTaxdraftShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvTaxdraftVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvTaxdraftEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
