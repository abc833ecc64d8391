package material

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NordCoder/greensteps/internal/domain/kafka"
	domainmaterial "github.com/NordCoder/greensteps/internal/domain/material"
	"github.com/NordCoder/greensteps/internal/domain/outbox"
	"github.com/NordCoder/greensteps/internal/domain/user"
	"github.com/NordCoder/greensteps/internal/obs"
	"github.com/NordCoder/greensteps/internal/repository/postgres"
)

const (
	MaxTitleLen  = 200
	DefaultLimit = 100
	MaxLimit     = 100
)

type Usecase struct {
	repo   domainmaterial.Repo
	outbox outbox.Repository
	tx     postgres.Transactor
	log    *zap.Logger
	now    func() time.Time
}

func NewUseCase(repo domainmaterial.Repo, ob outbox.Repository, tx postgres.Transactor, log *zap.Logger) *Usecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &Usecase{
		repo:   repo,
		outbox: ob,
		tx:     tx,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a pending material and queues it for generation in the
// same transaction.
func (u *Usecase) Create(ctx context.Context, owner uuid.UUID, title string) (*domainmaterial.Material, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}

	m := &domainmaterial.Material{
		ID:      uuid.New(),
		OwnerID: owner,
		Title:   title,
		Status:  domainmaterial.StatusPending,
	}
	err = u.tx.WithTx(ctx, func(txCtx context.Context) error {
		if err := u.repo.Create(txCtx, m); err != nil {
			return err
		}
		payload, err := json.Marshal(kafka.MaterialRequested{MaterialID: m.ID, OwnerID: owner, At: u.now()})
		if err != nil {
			return err
		}
		return u.outbox.Enqueue(txCtx, "material:"+m.ID.String(), outbox.KindMaterialRequested, payload)
	})
	if err != nil {
		return nil, fmt.Errorf("create material: %w", err)
	}
	obs.FromContext(ctx, u.log).Info("material.enqueued",
		zap.String("material_id", m.ID.String()), zap.String("owner_id", owner.String()))
	return m, nil
}

// Get hides materials of other owners behind ErrNotFound.
func (u *Usecase) Get(ctx context.Context, owner, id uuid.UUID) (*domainmaterial.Material, error) {
	m, err := u.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domainmaterial.ErrNotFound) {
			return nil, domainmaterial.ErrNotFound
		}
		return nil, fmt.Errorf("get material: %w", err)
	}
	if m.OwnerID != owner {
		return nil, domainmaterial.ErrNotFound
	}
	return m, nil
}

// List pages through the owner's materials, newest first. A non-positive
// limit means DefaultLimit; larger ones are capped at MaxLimit.
func (u *Usecase) List(ctx context.Context, owner uuid.UUID, skip, limit int) ([]domainmaterial.Material, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	ms, err := u.repo.ListByOwner(ctx, owner, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return ms, nil
}

func (u *Usecase) Rename(ctx context.Context, owner, id uuid.UUID, title string) (*domainmaterial.Material, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	m, err := u.repo.Rename(ctx, owner, id, title)
	if err != nil {
		if errors.Is(err, domainmaterial.ErrNotFound) {
			return nil, domainmaterial.ErrNotFound
		}
		return nil, fmt.Errorf("rename material: %w", err)
	}
	return m, nil
}

// Delete removes the material. A worker still holding the request skips it.
func (u *Usecase) Delete(ctx context.Context, owner, id uuid.UUID) error {
	if err := u.repo.Delete(ctx, owner, id); err != nil {
		if errors.Is(err, domainmaterial.ErrNotFound) {
			return domainmaterial.ErrNotFound
		}
		return fmt.Errorf("delete material: %w", err)
	}
	obs.FromContext(ctx, u.log).Info("material.deleted",
		zap.String("material_id", id.String()), zap.String("owner_id", owner.String()))
	return nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	var verr user.ValidationError
	switch {
	case title == "":
		verr.Add("title", "must not be empty")
	case utf8.RuneCountInString(title) > MaxTitleLen:
		verr.Add("title", fmt.Sprintf("must be at most %d characters", MaxTitleLen))
	}
	return title, verr.OrNil()
}
