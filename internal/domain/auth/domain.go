package auth

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrInvalidToken         = errors.New("invalid token")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrSecurityBreach       = errors.New("refresh token reuse detected")
	ErrEmailTaken           = errors.New("email already registered")
	ErrUserNotFound         = errors.New("user not found")
	ErrDuplicateFingerprint = errors.New("duplicate refresh token fingerprint")
	ErrRefreshNotFound      = errors.New("refresh token not found")
	ErrRefreshAlreadyUsed   = errors.New("refresh token already used")
)

// ClientMeta is the request context stored next to a refresh record.
type ClientMeta struct {
	UserAgent string
	IP        string
}

// RefreshToken is a persisted fingerprint of an issued refresh token.
// The raw token value is never stored.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	IsUsed    bool
	UsedAt    *time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
	UserAgent string
	IPAddress string
}

// Expired reports whether the record is past its expiry. Expiry is exclusive.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Pair is what a successful login or refresh hands back to the client.
type Pair struct {
	UserID           uuid.UUID
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
