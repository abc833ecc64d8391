package material_worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/greensteps/internal/domain/kafka"
	"github.com/NordCoder/greensteps/internal/domain/material"
)

type memMaterials struct {
	mu    sync.Mutex
	items map[uuid.UUID]*material.Material
}

func newMemMaterials(ms ...*material.Material) *memMaterials {
	r := &memMaterials{items: map[uuid.UUID]*material.Material{}}
	for _, m := range ms {
		r.items[m.ID] = m
	}
	return r
}

func (r *memMaterials) Create(_ context.Context, m *material.Material) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[m.ID] = m
	return nil
}

func (r *memMaterials) GetByID(_ context.Context, id uuid.UUID) (*material.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return nil, material.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMaterials) SetStatus(_ context.Context, id uuid.UUID, to material.Status, errMsg *string, from ...material.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok || !slices.Contains(from, m.Status) {
		return false, nil
	}
	m.Status = to
	m.Error = errMsg
	return true, nil
}

func (r *memMaterials) status(id uuid.UUID) material.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id].Status
}

type genFunc func(ctx context.Context, m *material.Material) error

func (f genFunc) Generate(ctx context.Context, m *material.Material) error { return f(ctx, m) }

func pending() *material.Material {
	return &material.Material{ID: uuid.New(), OwnerID: uuid.New(), Title: "Compost at home", Status: material.StatusPending}
}

func TestHandleRequested_Ready(t *testing.T) {
	m := pending()
	repo := newMemMaterials(m)
	var sawProcessing bool
	h := &Handler{Materials: repo, Log: zap.NewNop(), Generator: genFunc(func(_ context.Context, got *material.Material) error {
		sawProcessing = repo.status(got.ID) == material.StatusProcessing
		return nil
	})}

	require.NoError(t, h.HandleRequested(context.Background(), kafka.MaterialRequested{MaterialID: m.ID}))
	assert.True(t, sawProcessing)
	assert.Equal(t, material.StatusReady, repo.status(m.ID))
}

func TestHandleRequested_GeneratorErrorMarksFailed(t *testing.T) {
	m := pending()
	repo := newMemMaterials(m)
	h := &Handler{Materials: repo, Log: zap.NewNop(), Generator: genFunc(func(context.Context, *material.Material) error {
		return errors.New(strings.Repeat("x", 600))
	})}

	require.NoError(t, h.HandleRequested(context.Background(), kafka.MaterialRequested{MaterialID: m.ID}))
	got, _ := repo.GetByID(context.Background(), m.ID)
	assert.Equal(t, material.StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Len(t, *got.Error, maxErrorLen)
}

func TestHandleRequested_SkipsFinishedAndMissing(t *testing.T) {
	done := pending()
	done.Status = material.StatusReady
	repo := newMemMaterials(done)
	calls := 0
	h := &Handler{Materials: repo, Log: zap.NewNop(), Generator: genFunc(func(context.Context, *material.Material) error {
		calls++
		return nil
	})}

	require.NoError(t, h.HandleRequested(context.Background(), kafka.MaterialRequested{MaterialID: done.ID}))
	require.NoError(t, h.HandleRequested(context.Background(), kafka.MaterialRequested{MaterialID: uuid.New()}))
	assert.Zero(t, calls)
	assert.Equal(t, material.StatusReady, repo.status(done.ID))
}

func TestHandleRequested_TimeoutFailsTheMaterial(t *testing.T) {
	m := pending()
	repo := newMemMaterials(m)
	h := &Handler{Materials: repo, Log: zap.NewNop(), Timeout: 10 * time.Millisecond,
		Generator: genFunc(func(ctx context.Context, _ *material.Material) error {
			<-ctx.Done()
			return ctx.Err()
		})}

	require.NoError(t, h.HandleRequested(context.Background(), kafka.MaterialRequested{MaterialID: m.ID}))
	assert.Equal(t, material.StatusFailed, repo.status(m.ID))
}

func TestHandleRequested_ShutdownLeavesProcessing(t *testing.T) {
	m := pending()
	repo := newMemMaterials(m)
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{Materials: repo, Log: zap.NewNop(), Generator: genFunc(func(ctx context.Context, _ *material.Material) error {
		cancel()
		return ctx.Err()
	})}

	assert.ErrorIs(t, h.HandleRequested(ctx, kafka.MaterialRequested{MaterialID: m.ID}), context.Canceled)
	assert.Equal(t, material.StatusProcessing, repo.status(m.ID))
}

func TestHTTPGenerator(t *testing.T) {
	var mu sync.Mutex
	var body string
	status := http.StatusAccepted
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(b)
		code := status
		mu.Unlock()
		w.WriteHeader(code)
	}))
	defer srv.Close()

	m := pending()
	g := HTTPGenerator{URL: srv.URL, Client: srv.Client()}
	require.NoError(t, g.Generate(context.Background(), m))
	mu.Lock()
	assert.Contains(t, body, m.ID.String())
	assert.Contains(t, body, `"title":"Compost at home"`)
	status = http.StatusBadGateway
	mu.Unlock()

	assert.ErrorContains(t, g.Generate(context.Background(), m), "502")
	assert.ErrorIs(t, HTTPGenerator{}.Generate(context.Background(), m), ErrGeneratorNotConfigured)
}
