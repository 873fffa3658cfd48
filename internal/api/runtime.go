package api

import (
	"fmt"

	"github.com/JaimeStill/taxdraft/internal/config"
	"github.com/JaimeStill/taxdraft/internal/infrastructure"
	"github.com/JaimeStill/taxdraft/internal/reasoning"
	"github.com/JaimeStill/taxdraft/internal/workflow"
	"github.com/JaimeStill/taxdraft/pkg/pagination"
)

// Runtime extends Infrastructure with API-specific configuration and the
// model provider chain shared by every run.
type Runtime struct {
	*infrastructure.Infrastructure
	Pagination pagination.Config
	Reasoner   reasoning.System
	Workflow   *workflow.Config
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) (*Runtime, error) {
	logger := infra.Logger.With("module", "api")

	reasoner, err := reasoning.New(&cfg.Reasoning, logger)
	if err != nil {
		return nil, fmt.Errorf("reasoning init failed: %w", err)
	}

	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    logger,
			Database:  infra.Database,
			Storage:   infra.Storage,
			Progress:  infra.Progress,
		},
		Pagination: cfg.API.Pagination,
		Reasoner:   reasoner,
		Workflow:   &cfg.Workflow,
	}, nil
}
