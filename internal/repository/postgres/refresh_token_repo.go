package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/greensteps/internal/domain/auth"
)

var _ auth.RefreshTokenRepo = (*RefreshTokenRepo)(nil)

type RefreshTokenRepo struct{ db *DB }

func NewRefreshTokenRepo(db *DB) *RefreshTokenRepo { return &RefreshTokenRepo{db: db} }

const (
	qRTCreate = `
INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, user_agent, ip_address)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	qRTByHash = `
SELECT id, user_id, token_hash, expires_at, is_used, used_at, revoked_at, created_at, user_agent, ip_address
FROM refresh_tokens
WHERE token_hash = $1;`

	qRTMarkUsed = `
UPDATE refresh_tokens
SET is_used = TRUE, used_at = $2
WHERE id = $1 AND is_used = FALSE;`

	qRTExists = `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE id = $1);`

	qRTDeleteByHash = `DELETE FROM refresh_tokens WHERE token_hash = $1;`

	qRTRevokeAll = `DELETE FROM refresh_tokens WHERE user_id = $1;`

	qRTPruneExpired = `DELETE FROM refresh_tokens WHERE user_id = $1 AND expires_at <= $2;`

	// live and used records are capped separately so rotation history does
	// not push out live sessions of other devices; $3 always ranks first
	qRTPruneOverflow = `
DELETE FROM refresh_tokens
WHERE id IN (
    SELECT id FROM (
        SELECT id, ROW_NUMBER() OVER (
            PARTITION BY is_used
            ORDER BY (id = $3) DESC, created_at DESC, id DESC
        ) AS rn
        FROM refresh_tokens
        WHERE user_id = $1
    ) ranked
    WHERE rn > $2
);`
)

func (r *RefreshTokenRepo) Create(ctx context.Context, t *auth.RefreshToken) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.execQueryer(ctx).Exec(ctx, qRTCreate,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt, t.UserAgent, t.IPAddress)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrDuplicateFingerprint
		}
		return fmt.Errorf("refresh insert: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepo) FindByFingerprint(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var t auth.RefreshToken
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qRTByHash, tokenHash).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.IsUsed,
		&t.UsedAt, &t.RevokedAt, &t.CreatedAt, &t.UserAgent, &t.IPAddress,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrRefreshNotFound
		}
		return nil, fmt.Errorf("refresh by fingerprint: %w", err)
	}
	return &t, nil
}

func (r *RefreshTokenRepo) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	tag, err := eq.Exec(ctx, qRTMarkUsed, id, at)
	if err != nil {
		return fmt.Errorf("refresh mark used: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := eq.QueryRow(ctx, qRTExists, id).Scan(&exists); err != nil {
		return fmt.Errorf("refresh exists: %w", err)
	}
	if !exists {
		return auth.ErrRefreshNotFound
	}
	return auth.ErrRefreshAlreadyUsed
}

func (r *RefreshTokenRepo) DeleteByFingerprint(ctx context.Context, tokenHash string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTDeleteByHash, tokenHash)
	if err != nil {
		return false, fmt.Errorf("refresh delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RefreshTokenRepo) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTRevokeAll, userID)
	if err != nil {
		return 0, fmt.Errorf("refresh revoke all: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepo) Prune(ctx context.Context, userID uuid.UUID, now time.Time, keep int, survivor uuid.UUID) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	expired, err := eq.Exec(ctx, qRTPruneExpired, userID, now)
	if err != nil {
		return 0, fmt.Errorf("refresh prune expired: %w", err)
	}
	if keep <= 0 {
		return expired.RowsAffected(), nil
	}
	overflow, err := eq.Exec(ctx, qRTPruneOverflow, userID, keep, survivor)
	if err != nil {
		return 0, fmt.Errorf("refresh prune overflow: %w", err)
	}
	return expired.RowsAffected() + overflow.RowsAffected(), nil
}
