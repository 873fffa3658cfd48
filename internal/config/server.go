package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

type serverEnvNames struct {
	Host              string
	Port              string
	ReadTimeout       string
	ReadHeaderTimeout string
	WriteTimeout      string
	IdleTimeout       string
	ShutdownTimeout   string
}

var serverEnv = serverEnvNames{
	Host:              "TAXDRAFT_SERVER_HOST",
	Port:              "TAXDRAFT_SERVER_PORT",
	ReadTimeout:       "TAXDRAFT_SERVER_READ_TIMEOUT",
	ReadHeaderTimeout: "TAXDRAFT_SERVER_READ_HEADER_TIMEOUT",
	WriteTimeout:      "TAXDRAFT_SERVER_WRITE_TIMEOUT",
	IdleTimeout:       "TAXDRAFT_SERVER_IDLE_TIMEOUT",
	ShutdownTimeout:   "TAXDRAFT_SERVER_SHUTDOWN_TIMEOUT",
}

// ServerConfig holds HTTP server parameters. Durations are Go duration
// strings. The write timeout bounds a whole synchronous run, so it
// defaults well above the model call timeout.
type ServerConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	ReadTimeout       string `toml:"read_timeout"`
	ReadHeaderTimeout string `toml:"read_header_timeout"`
	WriteTimeout      string `toml:"write_timeout"`
	IdleTimeout       string `toml:"idle_timeout"`
	ShutdownTimeout   string `toml:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *ServerConfig) ReadTimeoutDuration() time.Duration {
	return duration(c.ReadTimeout)
}

func (c *ServerConfig) ReadHeaderTimeoutDuration() time.Duration {
	return duration(c.ReadHeaderTimeout)
}

func (c *ServerConfig) WriteTimeoutDuration() time.Duration {
	return duration(c.WriteTimeout)
}

func (c *ServerConfig) IdleTimeoutDuration() time.Duration {
	return duration(c.IdleTimeout)
}

func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return duration(c.ShutdownTimeout)
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ServerConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Host != "" {
		c.Host = overlay.Host
	}
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	for _, f := range c.durations(overlay) {
		if *f.src != "" {
			*f.dst = *f.src
		}
	}
}

func (c *ServerConfig) loadDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	defaults := map[*string]string{
		&c.ReadTimeout:       "1m",
		&c.ReadHeaderTimeout: "10s",
		&c.WriteTimeout:      "15m",
		&c.IdleTimeout:       "2m",
		&c.ShutdownTimeout:   "30s",
	}
	for dst, v := range defaults {
		if *dst == "" {
			*dst = v
		}
	}
}

func (c *ServerConfig) loadEnv() {
	if v := os.Getenv(serverEnv.Host); v != "" {
		c.Host = v
	}
	if v := os.Getenv(serverEnv.Port); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}

	overrides := map[string]*string{
		serverEnv.ReadTimeout:       &c.ReadTimeout,
		serverEnv.ReadHeaderTimeout: &c.ReadHeaderTimeout,
		serverEnv.WriteTimeout:      &c.WriteTimeout,
		serverEnv.IdleTimeout:       &c.IdleTimeout,
		serverEnv.ShutdownTimeout:   &c.ShutdownTimeout,
	}
	for name, dst := range overrides {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for _, f := range c.durations(nil) {
		if _, err := time.ParseDuration(*f.dst); err != nil {
			return fmt.Errorf("invalid %s: %w", f.name, err)
		}
	}
	return nil
}

type durationField struct {
	name     string
	dst, src *string
}

// durations pairs each duration field with its counterpart in overlay,
// which may be nil.
func (c *ServerConfig) durations(overlay *ServerConfig) []durationField {
	fields := []durationField{
		{name: "read_timeout", dst: &c.ReadTimeout},
		{name: "read_header_timeout", dst: &c.ReadHeaderTimeout},
		{name: "write_timeout", dst: &c.WriteTimeout},
		{name: "idle_timeout", dst: &c.IdleTimeout},
		{name: "shutdown_timeout", dst: &c.ShutdownTimeout},
	}
	if overlay != nil {
		srcs := []*string{
			&overlay.ReadTimeout,
			&overlay.ReadHeaderTimeout,
			&overlay.WriteTimeout,
			&overlay.IdleTimeout,
			&overlay.ShutdownTimeout,
		}
		for i := range fields {
			fields[i].src = srcs[i]
		}
	}
	return fields
}

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
