package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/greensteps/internal/domain/material"
)

var _ material.Repo = (*MaterialRepo)(nil)

type MaterialRepo struct{ db *DB }

func NewMaterialRepo(db *DB) *MaterialRepo { return &MaterialRepo{db: db} }

const (
	qMaterialInsert = `
INSERT INTO materials (id, owner_id, title, status)
VALUES ($1, $2, $3, $4)
RETURNING created_at, updated_at;`

	materialColumns = `id, owner_id, title, status, error, created_at, updated_at`

	qMaterialByID = `SELECT ` + materialColumns + ` FROM materials WHERE id = $1;`

	qMaterialsByOwner = `
SELECT ` + materialColumns + `
FROM materials
WHERE owner_id = $1
ORDER BY created_at DESC, id DESC
OFFSET $2 LIMIT $3;`

	qMaterialRename = `
UPDATE materials
SET title = $3, updated_at = NOW()
WHERE id = $2 AND owner_id = $1
RETURNING ` + materialColumns + `;`

	qMaterialDelete = `DELETE FROM materials WHERE id = $2 AND owner_id = $1;`

	qMaterialSetStatus = `
UPDATE materials
SET status = $2, error = $3, updated_at = NOW()
WHERE id = $1 AND status = ANY($4);`
)

func (r *MaterialRepo) Create(ctx context.Context, m *material.Material) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = material.StatusPending
	}
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qMaterialInsert, m.ID, m.OwnerID, m.Title, string(m.Status)).
		Scan(&m.CreatedAt, &m.UpdatedAt); err != nil {
		return fmt.Errorf("material insert: %w", err)
	}
	return nil
}

func (r *MaterialRepo) GetByID(ctx context.Context, id uuid.UUID) (*material.Material, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var m material.Material
	if err := scanMaterial(r.db.execQueryer(ctx).QueryRow(ctx, qMaterialByID, id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MaterialRepo) ListByOwner(ctx context.Context, owner uuid.UUID, offset, limit int) ([]material.Material, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qMaterialsByOwner, owner, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("material list: %w", err)
	}
	defer rows.Close()

	out := make([]material.Material, 0, limit)
	for rows.Next() {
		var m material.Material
		if err := scanMaterial(rows, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("material list: %w", err)
	}
	return out, nil
}

func (r *MaterialRepo) Rename(ctx context.Context, owner, id uuid.UUID, title string) (*material.Material, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var m material.Material
	if err := scanMaterial(r.db.execQueryer(ctx).QueryRow(ctx, qMaterialRename, owner, id, title), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MaterialRepo) Delete(ctx context.Context, owner, id uuid.UUID) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qMaterialDelete, owner, id)
	if err != nil {
		return fmt.Errorf("material delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return material.ErrNotFound
	}
	return nil
}

func (r *MaterialRepo) SetStatus(ctx context.Context, id uuid.UUID, to material.Status, errMsg *string, from ...material.Status) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	fromStr := make([]string, 0, len(from))
	for _, s := range from {
		fromStr = append(fromStr, string(s))
	}
	tag, err := r.db.execQueryer(ctx).Exec(ctx, qMaterialSetStatus, id, string(to), errMsg, fromStr)
	if err != nil {
		return false, fmt.Errorf("material set status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanMaterial(row pgx.Row, m *material.Material) error {
	var status string
	if err := row.Scan(&m.ID, &m.OwnerID, &m.Title, &status, &m.Error, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return material.ErrNotFound
		}
		return fmt.Errorf("scan material: %w", err)
	}
	m.Status = material.Status(status)
	return nil
}
