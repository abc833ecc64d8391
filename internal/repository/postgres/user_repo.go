package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/greensteps/internal/domain/user"
)

var _ user.Repo = (*UserRepo)(nil)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, full_name, age, password_hash, interests, user_data, is_verified, created_at, updated_at`

const (
	qUserInsert = `
INSERT INTO users (id, email, full_name, age, password_hash, interests)
VALUES ($1, $2, $3, $4, $5, $6::jsonb)
RETURNING ` + userColumns + `;`

	qUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1;`

	qUserByIDForUpdate = `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE;`

	qUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = $1;`

	qUserUpdateProfile = `
UPDATE users
SET full_name  = $2,
    age        = $3,
    interests  = $4::jsonb,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + userColumns + `;`

	qUserSetData = `
UPDATE users
SET user_data  = $2::jsonb,
    updated_at = NOW()
WHERE id = $1;`

	qUserDelete = `DELETE FROM users WHERE id = $1;`
)

func (r *UserRepo) Create(ctx context.Context, u *user.User) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	interests, err := marshalJSONList(u.Interests)
	if err != nil {
		return err
	}
	row := r.db.execQueryer(ctx).QueryRow(ctx, qUserInsert,
		u.ID, u.Email, u.FullName, u.Age, u.PasswordHash, interests)
	if err := scanUser(row, u); err != nil {
		if isUniqueViolation(err) {
			return user.ErrEmailExists
		}
		return fmt.Errorf("user insert: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return r.getOne(ctx, qUserByID, id)
}

func (r *UserRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return r.getOne(ctx, qUserByIDForUpdate, id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getOne(ctx, qUserByEmail, email)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var u user.User
	if err := scanUser(r.db.execQueryer(ctx).QueryRow(ctx, q, arg), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) UpdateProfile(ctx context.Context, u *user.User) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	interests, err := marshalJSONList(u.Interests)
	if err != nil {
		return err
	}
	row := r.db.execQueryer(ctx).QueryRow(ctx, qUserUpdateProfile, u.ID, u.FullName, u.Age, interests)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return err
		}
		return fmt.Errorf("user update: %w", err)
	}
	return nil
}

func (r *UserRepo) SetUserData(ctx context.Context, id uuid.UUID, data []json.RawMessage) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	b, err := marshalJSONList(data)
	if err != nil {
		return err
	}
	tag, err := r.db.execQueryer(ctx).Exec(ctx, qUserSetData, id, b)
	if err != nil {
		return fmt.Errorf("user set data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qUserDelete, id)
	if err != nil {
		return fmt.Errorf("user delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row, out *user.User) error {
	var interests, data []byte
	if err := row.Scan(
		&out.ID, &out.Email, &out.FullName, &out.Age, &out.PasswordHash,
		&interests, &data, &out.IsVerified, &out.CreatedAt, &out.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.ErrNotFound
		}
		return fmt.Errorf("scan user: %w", err)
	}
	out.Interests = nil
	out.UserData = nil
	if len(interests) > 0 {
		if err := json.Unmarshal(interests, &out.Interests); err != nil {
			return fmt.Errorf("decode interests: %w", err)
		}
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out.UserData); err != nil {
			return fmt.Errorf("decode user_data: %w", err)
		}
	}
	return nil
}

// marshalJSONList encodes a nil slice as [] so the column stays an array.
func marshalJSONList[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json list: %w", err)
	}
	return string(b), nil
}
