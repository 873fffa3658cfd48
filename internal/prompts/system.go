package prompts

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/taxdraft/pkg/pagination"
)

// Resolver supplies the effective prompt text for a stage.
type Resolver interface {
	// Instructions returns the active override for stage, or the default.
	Instructions(ctx context.Context, stage Stage) (string, error)
	Spec(ctx context.Context, stage Stage) (string, error)
}

// System manages stored prompt overrides.
type System interface {
	Resolver

	Handler() *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Prompt], error)

	Find(ctx context.Context, id uuid.UUID) (*Prompt, error)
	Create(ctx context.Context, cmd CreateCommand) (*Prompt, error)
	Update(ctx context.Context, id uuid.UUID, cmd UpdateCommand) (*Prompt, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Activate makes id the active prompt for its stage, deactivating the
	// previous one in the same transaction.
	Activate(ctx context.Context, id uuid.UUID) (*Prompt, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*Prompt, error)
}

// Defaults resolves every stage to its built-in text. The CLI uses it
// where no database is available.
type Defaults struct{}

func (Defaults) Instructions(_ context.Context, stage Stage) (string, error) {
	return Instructions(stage)
}

func (Defaults) Spec(_ context.Context, stage Stage) (string, error) {
	return Spec(stage)
}
