// Package reasoning sends prompts to language model providers. Providers are
// tried in order behind a Chain and rate limited as a whole.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/JaimeStill/taxdraft/pkg/formatting"
)

// System answers text and vision prompts.
type System interface {
	Chat(ctx context.Context, prompt string) (string, error)
	// Vision answers a prompt about images given as data URIs.
	Vision(ctx context.Context, prompt string, images []string) (string, error)
}

// Provider is a System with a name for logging and error reporting.
type Provider interface {
	System
	Name() string
}

// New builds the rate limited provider chain described by cfg. The timeout
// applies to each provider attempt so a hung provider still falls through.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	providers := make([]Provider, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		p, err := newProvider(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		if d := cfg.TimeoutDuration(); d > 0 {
			p = Timeout(p, d)
		}
		providers = append(providers, p)
	}

	chain, err := NewChain(logger, providers...)
	if err != nil {
		return nil, err
	}

	var sys System = chain
	if cfg.RateLimit > 0 {
		sys = Limit(sys, rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst))
	}
	return sys, nil
}

func newProvider(name string, cfg *Config) (Provider, error) {
	switch name {
	case ProviderAgent:
		return NewAgent(cfg.AgentConfig()), nil
	case ProviderAnthropic:
		return NewAnthropic(&cfg.Anthropic), nil
	case ProviderOpenAI:
		return NewOpenAI(&cfg.OpenAI), nil
	default:
		return nil, ErrUnknownProvider
	}
}

// Chain tries each provider in order and returns the first success.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

func NewChain(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("system", "reasoning"),
	}, nil
}

func (c *Chain) Chat(ctx context.Context, prompt string) (string, error) {
	return c.try(ctx, "chat", func(p Provider) (string, error) {
		return p.Chat(ctx, prompt)
	})
}

// Vision skips providers that report ErrVisionUnsupported. When every
// provider skips, the result is ErrVisionUnsupported.
func (c *Chain) Vision(ctx context.Context, prompt string, images []string) (string, error) {
	return c.try(ctx, "vision", func(p Provider) (string, error) {
		return p.Vision(ctx, prompt, images)
	})
}

func (c *Chain) try(ctx context.Context, op string, call func(Provider) (string, error)) (string, error) {
	var errs []error
	for _, p := range c.providers {
		out, err := call(p)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrVisionUnsupported) {
			continue
		}

		c.logger.WarnContext(ctx, "reasoning provider failed",
			"provider", p.Name(),
			"operation", op,
			"error", err,
		)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))

		if ctx.Err() != nil {
			break
		}
	}

	if len(errs) == 0 {
		return "", ErrVisionUnsupported
	}
	return "", errors.Join(append([]error{ErrAllProvidersFailed}, errs...)...)
}

type limited struct {
	next    System
	limiter *rate.Limiter
}

// Limit waits on limiter before every call to sys.
func Limit(sys System, limiter *rate.Limiter) System {
	return &limited{next: sys, limiter: limiter}
}

func (l *limited) Chat(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return l.next.Chat(ctx, prompt)
}

func (l *limited) Vision(ctx context.Context, prompt string, images []string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return l.next.Vision(ctx, prompt, images)
}

type timed struct {
	next    Provider
	timeout time.Duration
}

// Timeout bounds every call to p by d.
func Timeout(p Provider, d time.Duration) Provider {
	return &timed{next: p, timeout: d}
}

func (t *timed) Name() string { return t.next.Name() }

func (t *timed) Chat(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Chat(ctx, prompt)
}

func (t *timed) Vision(ctx context.Context, prompt string, images []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Vision(ctx, prompt, images)
}

// ChatJSON sends prompt and parses the reply as T. Markdown fences and
// surrounding prose are tolerated.
func ChatJSON[T any](ctx context.Context, sys System, prompt string) (T, error) {
	var zero T

	reply, err := sys.Chat(ctx, prompt)
	if err != nil {
		return zero, err
	}
	return formatting.Parse[T](reply)
}
