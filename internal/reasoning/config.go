package reasoning

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	gaconfig "github.com/JaimeStill/go-agents/pkg/config"
)

const (
	ProviderAgent     = "agent"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config selects and configures the reasoning providers.
type Config struct {
	// Providers lists provider names in the order the chain tries them.
	Providers []string        `toml:"providers"`
	RateLimit float64         `toml:"rate_limit"`
	Burst     int             `toml:"burst"`
	Timeout   string          `toml:"timeout"`
	Agent     AgentConfig     `toml:"agent"`
	Anthropic AnthropicConfig `toml:"anthropic"`
	OpenAI    OpenAIConfig    `toml:"openai"`
}

// AgentConfig is the TOML form of a go-agents agent configuration.
type AgentConfig struct {
	Name     string         `toml:"name"`
	Provider string         `toml:"provider"`
	BaseURL  string         `toml:"base_url"`
	Model    string         `toml:"model"`
	Options  map[string]any `toml:"options"`
}

type AnthropicConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

type OpenAIConfig struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

// Env maps reasoning settings to environment variable names.
type Env struct {
	Providers       string
	RateLimit       string
	Burst           string
	Timeout         string
	AgentName       string
	AgentProvider   string
	AgentBaseURL    string
	AgentModel      string
	AgentToken      string
	AgentDeployment string
	AgentAPIVersion string
	AgentAuthType   string
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if len(overlay.Providers) > 0 {
		c.Providers = overlay.Providers
	}
	if overlay.RateLimit != 0 {
		c.RateLimit = overlay.RateLimit
	}
	if overlay.Burst != 0 {
		c.Burst = overlay.Burst
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	c.Agent.merge(&overlay.Agent)
	c.Anthropic.merge(&overlay.Anthropic)
	c.OpenAI.merge(&overlay.OpenAI)
}

// AgentConfig converts the agent section into a go-agents configuration,
// filling unset values from the go-agents defaults.
func (c *Config) AgentConfig() gaconfig.AgentConfig {
	overlay := gaconfig.AgentConfig{Name: c.Agent.Name}
	if c.Agent.Provider != "" || c.Agent.BaseURL != "" || len(c.Agent.Options) > 0 {
		overlay.Provider = &gaconfig.ProviderConfig{
			Name:    c.Agent.Provider,
			BaseURL: c.Agent.BaseURL,
			Options: c.Agent.Options,
		}
	}
	if c.Agent.Model != "" {
		overlay.Model = &gaconfig.ModelConfig{Name: c.Agent.Model}
	}

	cfg := gaconfig.DefaultAgentConfig()
	cfg.Merge(&overlay)
	return cfg
}

func (c *Config) loadDefaults() {
	if len(c.Providers) == 0 {
		c.Providers = []string{ProviderAgent}
	}
	if c.RateLimit == 0 {
		c.RateLimit = 2
	}
	if c.Burst == 0 {
		c.Burst = 1
	}
	if c.Timeout == "" {
		c.Timeout = "2m"
	}
	if c.Agent.Name == "" {
		c.Agent.Name = "taxdraft"
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = "claude-sonnet-4-5"
	}
	if c.Anthropic.MaxTokens == 0 {
		c.Anthropic.MaxTokens = 4096
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o"
	}
	if c.OpenAI.MaxTokens == 0 {
		c.OpenAI.MaxTokens = 4096
	}
}

func (c *Config) loadEnv(env *Env) {
	if v := os.Getenv(env.Providers); env.Providers != "" && v != "" {
		var providers []string
		for p := range strings.SplitSeq(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				providers = append(providers, p)
			}
		}
		c.Providers = providers
	}
	if v := os.Getenv(env.RateLimit); env.RateLimit != "" && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimit = f
		}
	}
	if v := os.Getenv(env.Burst); env.Burst != "" && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Burst = n
		}
	}

	set := func(name string, dst *string) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	set(env.Timeout, &c.Timeout)
	set(env.AgentName, &c.Agent.Name)
	set(env.AgentProvider, &c.Agent.Provider)
	set(env.AgentBaseURL, &c.Agent.BaseURL)
	set(env.AgentModel, &c.Agent.Model)
	set(env.AnthropicAPIKey, &c.Anthropic.APIKey)
	set(env.AnthropicModel, &c.Anthropic.Model)
	set(env.OpenAIAPIKey, &c.OpenAI.APIKey)
	set(env.OpenAIBaseURL, &c.OpenAI.BaseURL)
	set(env.OpenAIModel, &c.OpenAI.Model)

	option := func(name, key string) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			if c.Agent.Options == nil {
				c.Agent.Options = make(map[string]any)
			}
			c.Agent.Options[key] = v
		}
	}
	option(env.AgentToken, "token")
	option(env.AgentDeployment, "deployment")
	option(env.AgentAPIVersion, "api_version")
	option(env.AgentAuthType, "auth_type")
}

func (c *Config) validate() error {
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be non-negative: %g", c.RateLimit)
	}
	if c.Burst < 1 {
		return fmt.Errorf("burst must be positive: %d", c.Burst)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}

	for _, p := range c.Providers {
		switch p {
		case ProviderAgent:
			cfg := c.AgentConfig()
			if cfg.Provider == nil || cfg.Provider.Name == "" {
				return fmt.Errorf("agent: provider name required")
			}
			if cfg.Model == nil || cfg.Model.Name == "" {
				return fmt.Errorf("agent: model required")
			}
		case ProviderAnthropic:
			if c.Anthropic.APIKey == "" {
				return fmt.Errorf("anthropic: api_key required")
			}
		case ProviderOpenAI:
			if c.OpenAI.APIKey == "" && c.OpenAI.BaseURL == "" {
				return fmt.Errorf("openai: api_key or base_url required")
			}
		default:
			return fmt.Errorf("%w: %s", ErrUnknownProvider, p)
		}
	}
	return nil
}

func (c *AgentConfig) merge(overlay *AgentConfig) {
	if overlay.Name != "" {
		c.Name = overlay.Name
	}
	if overlay.Provider != "" {
		c.Provider = overlay.Provider
	}
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.Model != "" {
		c.Model = overlay.Model
	}
	if len(overlay.Options) > 0 {
		if c.Options == nil {
			c.Options = make(map[string]any, len(overlay.Options))
		}
		for k, v := range overlay.Options {
			c.Options[k] = v
		}
	}
}

func (c *AnthropicConfig) merge(overlay *AnthropicConfig) {
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.Model != "" {
		c.Model = overlay.Model
	}
	if overlay.MaxTokens != 0 {
		c.MaxTokens = overlay.MaxTokens
	}
}

func (c *OpenAIConfig) merge(overlay *OpenAIConfig) {
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.Model != "" {
		c.Model = overlay.Model
	}
	if overlay.MaxTokens != 0 {
		c.MaxTokens = overlay.MaxTokens
	}
}
