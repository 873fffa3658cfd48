package workflow

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/JaimeStill/taxdraft/pkg/engine"
)

// Continuation policies selectable by name.
const (
	PolicyContinue     = "continue"
	PolicyHalt         = "halt"
	PolicyHaltOnCancel = "halt_on_cancel"
)

// Config tunes step behavior.
type Config struct {
	Policy string `toml:"policy"`
	// PromptTextLimit caps the raw text per document sent with the
	// drafting prompt, in runes.
	PromptTextLimit     int     `toml:"prompt_text_limit"`
	COGSRatioThreshold  float64 `toml:"cogs_ratio_threshold"`
	MathTolerance       float64 `toml:"math_tolerance"`
	LargeValueThreshold float64 `toml:"large_value_threshold"`
	// DemoDefaults lets DraftForms fall back to fixed sample figures when
	// no tax data can be found.
	DemoDefaults   bool `toml:"demo_defaults"`
	ExtractWorkers int  `toml:"extract_workers"`
}

// Env maps workflow settings to environment variable names.
type Env struct {
	Policy              string
	PromptTextLimit     string
	COGSRatioThreshold  string
	MathTolerance       string
	LargeValueThreshold string
	DemoDefaults        string
	ExtractWorkers      string
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
	if overlay.Policy != "" {
		c.Policy = overlay.Policy
	}
	if overlay.PromptTextLimit != 0 {
		c.PromptTextLimit = overlay.PromptTextLimit
	}
	if overlay.COGSRatioThreshold != 0 {
		c.COGSRatioThreshold = overlay.COGSRatioThreshold
	}
	if overlay.MathTolerance != 0 {
		c.MathTolerance = overlay.MathTolerance
	}
	if overlay.LargeValueThreshold != 0 {
		c.LargeValueThreshold = overlay.LargeValueThreshold
	}
	if overlay.DemoDefaults {
		c.DemoDefaults = true
	}
	if overlay.ExtractWorkers != 0 {
		c.ExtractWorkers = overlay.ExtractWorkers
	}
}

// EnginePolicy resolves Policy to an engine continuation policy.
func (c *Config) EnginePolicy() (engine.Policy, error) {
	switch c.Policy {
	case PolicyContinue, "":
		return engine.ContinueAlways, nil
	case PolicyHalt:
		return engine.HaltAlways, nil
	case PolicyHaltOnCancel:
		return engine.HaltOn(context.Canceled, context.DeadlineExceeded), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidPolicy, c.Policy)
	}
}

func (c *Config) loadDefaults() {
	if c.Policy == "" {
		c.Policy = PolicyContinue
	}
	if c.PromptTextLimit == 0 {
		c.PromptTextLimit = 2000
	}
	if c.COGSRatioThreshold == 0 {
		c.COGSRatioThreshold = 0.8
	}
	if c.MathTolerance == 0 {
		c.MathTolerance = 1
	}
	if c.LargeValueThreshold == 0 {
		c.LargeValueThreshold = 1_000_000_000
	}
	if c.ExtractWorkers == 0 {
		c.ExtractWorkers = 4
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Policy != "" {
		if v := os.Getenv(env.Policy); v != "" {
			c.Policy = v
		}
	}
	if env.PromptTextLimit != "" {
		if v := os.Getenv(env.PromptTextLimit); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.PromptTextLimit = n
			}
		}
	}
	float := func(name string, dst *float64) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	float(env.COGSRatioThreshold, &c.COGSRatioThreshold)
	float(env.MathTolerance, &c.MathTolerance)
	float(env.LargeValueThreshold, &c.LargeValueThreshold)

	if env.DemoDefaults != "" {
		if v := os.Getenv(env.DemoDefaults); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.DemoDefaults = b
			}
		}
	}
	if env.ExtractWorkers != "" {
		if v := os.Getenv(env.ExtractWorkers); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.ExtractWorkers = n
			}
		}
	}
}

func (c *Config) validate() error {
	if _, err := c.EnginePolicy(); err != nil {
		return err
	}
	if c.PromptTextLimit < 1 {
		return fmt.Errorf("prompt_text_limit must be positive: %d", c.PromptTextLimit)
	}
	if c.COGSRatioThreshold <= 0 {
		return fmt.Errorf("cogs_ratio_threshold must be positive: %g", c.COGSRatioThreshold)
	}
	if c.MathTolerance < 0 {
		return fmt.Errorf("math_tolerance must be non-negative: %g", c.MathTolerance)
	}
	if c.LargeValueThreshold <= 0 {
		return fmt.Errorf("large_value_threshold must be positive: %g", c.LargeValueThreshold)
	}
	if c.ExtractWorkers < 1 {
		return fmt.Errorf("extract_workers must be positive: %d", c.ExtractWorkers)
	}
	return nil
}
