package openapi

import "os"

// Config holds the info metadata of the generated document served at
// /openapi.json.
type Config struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
}

// ConfigEnv maps config fields to environment variable names for override injection.
type ConfigEnv struct {
	Title       string
	Description string
}

// Finalize applies defaults and environment variable overrides.
func (c *Config) Finalize(env *ConfigEnv) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return nil
}

func (c *Config) Merge(overlay *Config) {
	if overlay.Title != "" {
		c.Title = overlay.Title
	}
	if overlay.Description != "" {
		c.Description = overlay.Description
	}
}

func (c *Config) loadDefaults() {
	if c.Title == "" {
		c.Title = "Taxdraft API"
	}
	if c.Description == "" {
		c.Description = "Drafts Form 1120-S figures from uploaded financial documents and records a provenance trail for every value."
	}
}

func (c *Config) loadEnv(env *ConfigEnv) {
	overrides := map[string]*string{
		env.Title:       &c.Title,
		env.Description: &c.Description,
	}
	for name, dst := range overrides {
		if name == "" {
			continue
		}
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
}
