package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/greensteps/internal/domain/kafka"
	"github.com/NordCoder/greensteps/internal/domain/outbox"
	"github.com/NordCoder/greensteps/internal/obs/retry"
)

type memRepo struct {
	mu      sync.Mutex
	pending []outbox.Message
	done    []string
}

func (r *memRepo) Enqueue(_ context.Context, key string, kind outbox.Kind, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, outbox.Message{IdempotencyKey: key, Kind: kind, Data: data})
	return nil
}

func (r *memRepo) PickBatch(_ context.Context, batch int, _ time.Duration) ([]outbox.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := min(batch, len(r.pending))
	out := append([]outbox.Message(nil), r.pending[:n]...)
	r.pending = r.pending[n:]
	return out, nil
}

func (r *memRepo) MarkSuccess(_ context.Context, keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = append(r.done, keys...)
	return nil
}

type memEvents struct {
	breaches  []kafka.SecurityBreach
	materials []kafka.MaterialRequested
	failures  int
}

func (e *memEvents) PublishSecurityBreach(_ context.Context, ev kafka.SecurityBreach) error {
	if e.failures > 0 {
		e.failures--
		return errors.New("broker unavailable")
	}
	e.breaches = append(e.breaches, ev)
	return nil
}

func (e *memEvents) PublishMaterialRequested(_ context.Context, ev kafka.MaterialRequested) error {
	e.materials = append(e.materials, ev)
	return nil
}

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{Name: "test", Attempts: attempts}
}

func payload(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestTick_DeliversBothKinds(t *testing.T) {
	repo := &memRepo{}
	ev := &memEvents{}
	uid, mid := uuid.New(), uuid.New()
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, "breach:1", outbox.KindSecurityBreach, payload(t, kafka.SecurityBreach{UserID: uid, Revoked: 4})))
	require.NoError(t, repo.Enqueue(ctx, "material:1", outbox.KindMaterialRequested, payload(t, kafka.MaterialRequested{MaterialID: mid, OwnerID: uid})))

	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(ev, fastPolicy(1)), Config{BatchSize: 10})
	r.Tick(ctx)

	require.Len(t, ev.breaches, 1)
	assert.Equal(t, int64(4), ev.breaches[0].Revoked)
	require.Len(t, ev.materials, 1)
	assert.Equal(t, mid, ev.materials[0].MaterialID)
	assert.ElementsMatch(t, []string{"breach:1", "material:1"}, repo.done)
}

func TestTick_RetriesTransientPublishErrors(t *testing.T) {
	repo := &memRepo{}
	ev := &memEvents{failures: 2}
	ctx := context.Background()
	require.NoError(t, repo.Enqueue(ctx, "breach:2", outbox.KindSecurityBreach, payload(t, kafka.SecurityBreach{UserID: uuid.New()})))

	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(ev, fastPolicy(3)), Config{})
	r.Tick(ctx)

	assert.Len(t, ev.breaches, 1)
	assert.Equal(t, []string{"breach:2"}, repo.done)
}

func TestTick_LeavesFailedRowsUnmarked(t *testing.T) {
	repo := &memRepo{}
	ev := &memEvents{failures: 5}
	ctx := context.Background()
	require.NoError(t, repo.Enqueue(ctx, "breach:3", outbox.KindSecurityBreach, payload(t, kafka.SecurityBreach{UserID: uuid.New()})))

	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(ev, fastPolicy(2)), Config{})
	r.Tick(ctx)

	assert.Empty(t, ev.breaches)
	assert.Empty(t, repo.done)
	assert.Equal(t, 3, ev.failures)
}

func TestTick_DropsUndecodablePayloadWithoutRetry(t *testing.T) {
	repo := &memRepo{}
	ev := &memEvents{}
	ctx := context.Background()
	require.NoError(t, repo.Enqueue(ctx, "material:bad", outbox.KindMaterialRequested, []byte("{")))
	require.NoError(t, repo.Enqueue(ctx, "unknown:1", outbox.Kind(99), []byte("{}")))

	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(ev, fastPolicy(5)), Config{})
	r.Tick(ctx)

	assert.Empty(t, ev.materials)
	assert.Equal(t, []string{"material:bad"}, repo.done)
}

func TestRun_StopsOnCancel(t *testing.T) {
	repo := &memRepo{}
	ev := &memEvents{}
	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(ev, fastPolicy(1)), Config{Workers: 2, WaitTime: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.NoError(t, repo.Enqueue(context.Background(), "material:2", outbox.KindMaterialRequested, payload(t, kafka.MaterialRequested{MaterialID: uuid.New()})))
	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.done) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}
