package material

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/greensteps/internal/domain/kafka"
	domainmaterial "github.com/NordCoder/greensteps/internal/domain/material"
	"github.com/NordCoder/greensteps/internal/domain/outbox"
	"github.com/NordCoder/greensteps/internal/domain/user"
)

type memMaterials struct {
	mu    sync.Mutex
	items map[uuid.UUID]domainmaterial.Material
	tick  int
}

func (m *memMaterials) Create(_ context.Context, mat *domainmaterial.Material) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tick++
	mat.CreatedAt = time.Date(2025, 3, 1, 12, 0, m.tick, 0, time.UTC)
	mat.UpdatedAt = mat.CreatedAt
	m.items[mat.ID] = *mat
	return nil
}

func (m *memMaterials) GetByID(_ context.Context, id uuid.UUID) (*domainmaterial.Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mat, ok := m.items[id]
	if !ok {
		return nil, domainmaterial.ErrNotFound
	}
	return &mat, nil
}

func (m *memMaterials) ListByOwner(_ context.Context, owner uuid.UUID, offset, limit int) ([]domainmaterial.Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domainmaterial.Material
	for _, mat := range m.items {
		if mat.OwnerID == owner {
			out = append(out, mat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []domainmaterial.Material{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memMaterials) Rename(_ context.Context, owner, id uuid.UUID, title string) (*domainmaterial.Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mat, ok := m.items[id]
	if !ok || mat.OwnerID != owner {
		return nil, domainmaterial.ErrNotFound
	}
	mat.Title = title
	m.items[id] = mat
	return &mat, nil
}

func (m *memMaterials) Delete(_ context.Context, owner, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mat, ok := m.items[id]
	if !ok || mat.OwnerID != owner {
		return domainmaterial.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memMaterials) SetStatus(context.Context, uuid.UUID, domainmaterial.Status, *string, ...domainmaterial.Status) (bool, error) {
	return false, nil
}

type memOutbox struct {
	msgs []outbox.Message
	err  error
}

func (o *memOutbox) Enqueue(_ context.Context, key string, kind outbox.Kind, data []byte) error {
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, outbox.Message{IdempotencyKey: key, Kind: kind, Data: data})
	return nil
}

func (o *memOutbox) PickBatch(context.Context, int, time.Duration) ([]outbox.Message, error) {
	return nil, nil
}

func (o *memOutbox) MarkSuccess(context.Context, []string) error { return nil }

// rollbackTx undoes material inserts when the callback fails.
type rollbackTx struct{ repo *memMaterials }

func (r rollbackTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.repo.mu.Lock()
	before := make(map[uuid.UUID]domainmaterial.Material, len(r.repo.items))
	for k, v := range r.repo.items {
		before[k] = v
	}
	r.repo.mu.Unlock()
	if err := fn(ctx); err != nil {
		r.repo.mu.Lock()
		r.repo.items = before
		r.repo.mu.Unlock()
		return err
	}
	return nil
}

func newMaterials() (*Usecase, *memMaterials, *memOutbox) {
	repo := &memMaterials{items: map[uuid.UUID]domainmaterial.Material{}}
	ob := &memOutbox{}
	return NewUseCase(repo, ob, rollbackTx{repo}, nil), repo, ob
}

func TestCreate_EnqueuesRequest(t *testing.T) {
	uc, repo, ob := newMaterials()
	owner := uuid.New()

	m, err := uc.Create(context.Background(), owner, "  Glass jar ")
	require.NoError(t, err)
	assert.Equal(t, "Glass jar", m.Title)
	assert.Equal(t, domainmaterial.StatusPending, m.Status)
	assert.Contains(t, repo.items, m.ID)

	require.Len(t, ob.msgs, 1)
	assert.Equal(t, outbox.KindMaterialRequested, ob.msgs[0].Kind)
	assert.Equal(t, "material:"+m.ID.String(), ob.msgs[0].IdempotencyKey)
	var ev kafka.MaterialRequested
	require.NoError(t, json.Unmarshal(ob.msgs[0].Data, &ev))
	assert.Equal(t, m.ID, ev.MaterialID)
	assert.Equal(t, owner, ev.OwnerID)
}

func TestCreate_ValidatesTitle(t *testing.T) {
	uc, repo, ob := newMaterials()

	for _, title := range []string{"", "   ", strings.Repeat("x", MaxTitleLen+1)} {
		_, err := uc.Create(context.Background(), uuid.New(), title)
		var verr *user.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "title")
	}
	assert.Empty(t, repo.items)
	assert.Empty(t, ob.msgs)
}

func TestCreate_OutboxFailureRollsBack(t *testing.T) {
	uc, repo, ob := newMaterials()
	ob.err = errors.New("boom")

	_, err := uc.Create(context.Background(), uuid.New(), "Glass jar")
	require.Error(t, err)
	assert.Empty(t, repo.items)
}

func TestGet_OwnerOnly(t *testing.T) {
	uc, _, _ := newMaterials()
	owner := uuid.New()
	m, err := uc.Create(context.Background(), owner, "Glass jar")
	require.NoError(t, err)

	got, err := uc.Get(context.Background(), owner, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	_, err = uc.Get(context.Background(), uuid.New(), m.ID)
	assert.ErrorIs(t, err, domainmaterial.ErrNotFound)
	_, err = uc.Get(context.Background(), owner, uuid.New())
	assert.ErrorIs(t, err, domainmaterial.ErrNotFound)
}

func TestList_NewestFirstAndPaged(t *testing.T) {
	uc, _, _ := newMaterials()
	owner := uuid.New()
	for _, title := range []string{"Glass jar", "Cardboard", "Tin can"} {
		_, err := uc.Create(context.Background(), owner, title)
		require.NoError(t, err)
	}
	_, err := uc.Create(context.Background(), uuid.New(), "Someone else's")
	require.NoError(t, err)

	all, err := uc.List(context.Background(), owner, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Tin can", all[0].Title)
	assert.Equal(t, "Glass jar", all[2].Title)

	page, err := uc.List(context.Background(), owner, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Cardboard", page[0].Title)

	page, err = uc.List(context.Background(), owner, -5, 1000)
	require.NoError(t, err)
	assert.Len(t, page, 3)
}

func TestRename(t *testing.T) {
	uc, _, _ := newMaterials()
	owner := uuid.New()
	m, err := uc.Create(context.Background(), owner, "Glass jar")
	require.NoError(t, err)

	got, err := uc.Rename(context.Background(), owner, m.ID, "  Jam jar ")
	require.NoError(t, err)
	assert.Equal(t, "Jam jar", got.Title)

	_, err = uc.Rename(context.Background(), uuid.New(), m.ID, "Stolen")
	assert.ErrorIs(t, err, domainmaterial.ErrNotFound)

	_, err = uc.Rename(context.Background(), owner, m.ID, " ")
	var verr *user.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "title")
}

func TestDelete_OwnerOnly(t *testing.T) {
	uc, repo, _ := newMaterials()
	owner := uuid.New()
	m, err := uc.Create(context.Background(), owner, "Glass jar")
	require.NoError(t, err)

	assert.ErrorIs(t, uc.Delete(context.Background(), uuid.New(), m.ID), domainmaterial.ErrNotFound)
	assert.Contains(t, repo.items, m.ID)

	require.NoError(t, uc.Delete(context.Background(), owner, m.ID))
	assert.NotContains(t, repo.items, m.ID)
	assert.ErrorIs(t, uc.Delete(context.Background(), owner, m.ID), domainmaterial.ErrNotFound)
}
