// Package infrastructure provides core service initialization for application startup.
// It assembles the shared dependencies (logging, database, storage, progress)
// that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/JaimeStill/taxdraft/internal/config"
	"github.com/JaimeStill/taxdraft/internal/progress"
	"github.com/JaimeStill/taxdraft/pkg/database"
	"github.com/JaimeStill/taxdraft/pkg/lifecycle"
	"github.com/JaimeStill/taxdraft/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Progress  *progress.System
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	prog := progress.New(progress.NewClient(&cfg.Progress), &cfg.Progress, logger)

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Storage:   store,
		Progress:  prog,
	}, nil
}

// Start registers every system with the lifecycle coordinator. The database
// gates readiness; Redis is reported but optional since progress
// publishing never fails a run.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	if err := i.Progress.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("progress start failed: %w", err)
	}

	i.Lifecycle.Check("database", i.Database)
	return nil
}
