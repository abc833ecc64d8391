package user

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

type Repo interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, u *User) error
	SetUserData(ctx context.Context, id uuid.UUID, data []json.RawMessage) error
	Delete(ctx context.Context, id uuid.UUID) error
}
