package impact

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

type Repo interface {
	// Create stores the impact together with its steps.
	Create(ctx context.Context, im *Impact) error
	// ListIDs returns the owner's impact ids, newest first.
	ListIDs(ctx context.Context, owner uuid.UUID) ([]uuid.UUID, error)
	// Get loads an owned impact with its steps in order.
	Get(ctx context.Context, owner, id uuid.UUID) (*Impact, error)
	Delete(ctx context.Context, owner, id uuid.UUID) error
}

// Generator returns the raw JSON plan for a prompt. It fails with
// ErrGeneratorUnavailable when the backing service cannot be reached.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (json.RawMessage, error)
}
