package material_worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/NordCoder/greensteps/internal/domain/kafka"
	"github.com/NordCoder/greensteps/internal/domain/material"
	"github.com/NordCoder/greensteps/internal/obs"
)

const maxErrorLen = 500

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "material_jobs_total",
		Help: "Material requests handled by the worker.",
	}, []string{"result"})
	jobLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "material_generate_seconds",
		Help:    "Generator latency.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
)

// Materials is the slice of material.Repo the worker drives.
type Materials interface {
	GetByID(ctx context.Context, id uuid.UUID) (*material.Material, error)
	SetStatus(ctx context.Context, id uuid.UUID, to material.Status, errMsg *string, from ...material.Status) (bool, error)
}

type Handler struct {
	Materials Materials
	Generator material.Generator
	Log       *zap.Logger
	// Timeout bounds a single Generate call. Zero means no extra bound.
	Timeout time.Duration
}

// HandleRequested moves the material through processing to ready or failed.
// Redelivered requests for materials that already finished are skipped.
func (h *Handler) HandleRequested(ctx context.Context, ev kafka.MaterialRequested) error {
	log := obs.WithTrace(ctx, h.Log).With(zap.Stringer("material_id", ev.MaterialID))

	m, err := h.Materials.GetByID(ctx, ev.MaterialID)
	if errors.Is(err, material.ErrNotFound) {
		jobsTotal.WithLabelValues("gone").Inc()
		log.Info("material.skip", zap.String("reason", "deleted"))
		return nil
	}
	if err != nil {
		return fmt.Errorf("get material: %w", err)
	}

	ok, err := h.Materials.SetStatus(ctx, m.ID, material.StatusProcessing, nil,
		material.StatusPending, material.StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if !ok {
		jobsTotal.WithLabelValues("skipped").Inc()
		log.Info("material.skip", zap.String("status", string(m.Status)))
		return nil
	}

	genCtx := ctx
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	start := time.Now()
	genErr := h.Generator.Generate(genCtx, m)
	jobLatency.Observe(time.Since(start).Seconds())

	if genErr != nil {
		if ctx.Err() != nil {
			// shutting down; leave it in processing so redelivery picks it up
			return ctx.Err()
		}
		msg := truncate(genErr.Error(), maxErrorLen)
		if _, err := h.Materials.SetStatus(ctx, m.ID, material.StatusFailed, &msg, material.StatusProcessing); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		jobsTotal.WithLabelValues("failed").Inc()
		log.Warn("material.failed", zap.Error(genErr))
		return nil
	}

	if _, err := h.Materials.SetStatus(ctx, m.ID, material.StatusReady, nil, material.StatusProcessing); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	jobsTotal.WithLabelValues("ready").Inc()
	log.Info("material.ready", zap.Duration("took", time.Since(start)))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
