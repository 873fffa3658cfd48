package workflow

import (
	"log/slog"

	"github.com/JaimeStill/taxdraft/internal/extraction"
	"github.com/JaimeStill/taxdraft/internal/prompts"
	"github.com/JaimeStill/taxdraft/internal/reasoning"
	"github.com/JaimeStill/taxdraft/pkg/provenance"
)

// Runtime bundles the dependencies that workflow steps require.
// It is constructed by higher-level composition code from Infrastructure and Domain systems.
// Execute replaces Tracker with a fresh tracker for every run.
type Runtime struct {
	Extractor extraction.System
	Reasoner  reasoning.System
	Prompts   prompts.Resolver
	Tracker   *provenance.Tracker
	Logger    *slog.Logger
	Config    *Config
}
