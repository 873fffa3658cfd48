package reasoning

import (
	"context"
	"fmt"
	"strings"

	"github.com/JaimeStill/go-agents/pkg/agent"
	gaconfig "github.com/JaimeStill/go-agents/pkg/config"
)

// Agent calls a go-agents agent. A new agent is created per call so
// concurrent page transcriptions never share client state.
type Agent struct {
	cfg gaconfig.AgentConfig
}

func NewAgent(cfg gaconfig.AgentConfig) *Agent {
	return &Agent{cfg: cfg}
}

func (a *Agent) Name() string { return ProviderAgent }

func (a *Agent) Chat(ctx context.Context, prompt string) (string, error) {
	ag, err := agent.New(&a.cfg)
	if err != nil {
		return "", fmt.Errorf("create agent: %w", err)
	}

	resp, err := ag.Chat(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("agent chat: %w", err)
	}
	return content(resp.Content())
}

func (a *Agent) Vision(ctx context.Context, prompt string, images []string) (string, error) {
	ag, err := agent.New(&a.cfg)
	if err != nil {
		return "", fmt.Errorf("create agent: %w", err)
	}

	resp, err := ag.Vision(ctx, prompt, images)
	if err != nil {
		return "", fmt.Errorf("agent vision: %w", err)
	}
	return content(resp.Content())
}

func content(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", ErrEmptyResponse
	}
	return s, nil
}
