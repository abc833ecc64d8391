package material

import (
	"context"

	"github.com/google/uuid"
)

type Repo interface {
	Create(ctx context.Context, m *Material) error
	GetByID(ctx context.Context, id uuid.UUID) (*Material, error)
	// ListByOwner returns the owner's materials, newest first.
	ListByOwner(ctx context.Context, owner uuid.UUID, offset, limit int) ([]Material, error)
	// Rename and Delete only touch rows of owner; anything else is ErrNotFound.
	Rename(ctx context.Context, owner, id uuid.UUID, title string) (*Material, error)
	Delete(ctx context.Context, owner, id uuid.UUID) error
	// SetStatus moves a material from one of the from statuses to to.
	// It returns false when the material was not in any of them.
	SetStatus(ctx context.Context, id uuid.UUID, to Status, errMsg *string, from ...Status) (bool, error)
}

// Generator produces the guide for a material. Implementations live
// outside this repository.
type Generator interface {
	Generate(ctx context.Context, m *Material) error
}
