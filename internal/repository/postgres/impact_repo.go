package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/greensteps/internal/domain/impact"
)

var _ impact.Repo = (*ImpactRepo)(nil)

type ImpactRepo struct{ db *DB }

func NewImpactRepo(db *DB) *ImpactRepo { return &ImpactRepo{db: db} }

const (
	qImpactInsert = `
INSERT INTO impacts (id, owner_id, title, description)
VALUES ($1, $2, $3, $4)
RETURNING created_at;`

	qImpactStepsInsert = `
INSERT INTO impact_steps (id, impact_id, step_order, title, description, icon, unlocked)
SELECT s.id::uuid, $1, s.step_order, s.title, s.description, s.icon, s.unlocked
FROM unnest($2::text[], $3::int[], $4::text[], $5::text[], $6::text[], $7::bool[])
    AS s(id, step_order, title, description, icon, unlocked);`

	qImpactIDs = `
SELECT id FROM impacts
WHERE owner_id = $1
ORDER BY created_at DESC, id DESC;`

	qImpactGet = `
SELECT id, owner_id, title, description, created_at
FROM impacts
WHERE id = $2 AND owner_id = $1;`

	qImpactSteps = `
SELECT id, step_order, title, description, icon, unlocked
FROM impact_steps
WHERE impact_id = $1
ORDER BY step_order;`

	qImpactDelete = `DELETE FROM impacts WHERE id = $2 AND owner_id = $1;`
)

// Create writes the impact and all steps. Callers run it inside a
// transaction so a failed step insert leaves no half plan behind.
func (r *ImpactRepo) Create(ctx context.Context, im *impact.Impact) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if im.ID == uuid.Nil {
		im.ID = uuid.New()
	}
	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qImpactInsert, im.ID, im.OwnerID, im.Title, im.Description).Scan(&im.CreatedAt); err != nil {
		return fmt.Errorf("impact insert: %w", err)
	}
	if len(im.Steps) == 0 {
		return nil
	}

	n := len(im.Steps)
	var (
		ids    = make([]string, n)
		orders = make([]int32, n)
		titles = make([]string, n)
		descs  = make([]string, n)
		icons  = make([]string, n)
		open   = make([]bool, n)
	)
	for i := range im.Steps {
		s := &im.Steps[i]
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		ids[i], orders[i], titles[i], descs[i], icons[i], open[i] =
			s.ID.String(), int32(s.Order), s.Title, s.Description, s.Icon, s.Unlocked
	}
	if _, err := eq.Exec(ctx, qImpactStepsInsert, im.ID, ids, orders, titles, descs, icons, open); err != nil {
		return fmt.Errorf("impact steps insert: %w", err)
	}
	return nil
}

func (r *ImpactRepo) ListIDs(ctx context.Context, owner uuid.UUID) ([]uuid.UUID, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qImpactIDs, owner)
	if err != nil {
		return nil, fmt.Errorf("impact list: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("impact list: %w", err)
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return ids, nil
}

func (r *ImpactRepo) Get(ctx context.Context, owner, id uuid.UUID) (*impact.Impact, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	var im impact.Impact
	if err := eq.QueryRow(ctx, qImpactGet, owner, id).
		Scan(&im.ID, &im.OwnerID, &im.Title, &im.Description, &im.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, impact.ErrNotFound
		}
		return nil, fmt.Errorf("impact get: %w", err)
	}

	rows, err := eq.Query(ctx, qImpactSteps, im.ID)
	if err != nil {
		return nil, fmt.Errorf("impact steps: %w", err)
	}
	defer rows.Close()
	im.Steps = []impact.Step{}
	for rows.Next() {
		var s impact.Step
		if err := rows.Scan(&s.ID, &s.Order, &s.Title, &s.Description, &s.Icon, &s.Unlocked); err != nil {
			return nil, fmt.Errorf("scan impact step: %w", err)
		}
		im.Steps = append(im.Steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("impact steps: %w", err)
	}
	return &im, nil
}

func (r *ImpactRepo) Delete(ctx context.Context, owner, id uuid.UUID) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qImpactDelete, owner, id)
	if err != nil {
		return fmt.Errorf("impact delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return impact.ErrNotFound
	}
	return nil
}
