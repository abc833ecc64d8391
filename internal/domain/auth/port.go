package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RefreshTokenRepo interface {
	Create(ctx context.Context, t *RefreshToken) error
	FindByFingerprint(ctx context.Context, tokenHash string) (*RefreshToken, error)
	// MarkUsed flips is_used only if it is still false. A second call for the
	// same record returns ErrRefreshAlreadyUsed.
	MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteByFingerprint(ctx context.Context, tokenHash string) (bool, error)
	RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error)
	// Prune drops expired records of the owner, then the oldest ones until
	// at most keep used and keep unused records remain. The survivor record
	// is never dropped by the cap, even when it ties on created_at.
	Prune(ctx context.Context, userID uuid.UUID, now time.Time, keep int, survivor uuid.UUID) (int64, error)
}
