package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/NordCoder/greensteps/internal/domain/kafka"
	"github.com/NordCoder/greensteps/internal/domain/outbox"
	"github.com/NordCoder/greensteps/internal/obs/retry"
)

// errPayload marks rows whose data cannot be decoded; retrying will not help.
var errPayload = errors.New("outbox: bad payload")

var (
	outboxHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_handler_latency_seconds",
		Help:    "Latency of outbox handlers including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outboxHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_errors_total",
		Help: "Errors in outbox handlers (after retries).",
	}, []string{"kind"})
)

func instrument(kind outbox.Kind, h outbox.KindHandler, pol retry.Policy) outbox.KindHandler {
	tr := otel.Tracer("outbox.handler")
	if pol.Name == "" {
		pol.Name = "outbox_" + kind.String()
	}
	retryable := pol.Retryable
	pol.Retryable = func(err error) bool {
		if errors.Is(err, errPayload) {
			return false
		}
		return retryable == nil || retryable(err)
	}
	return func(ctx context.Context, data []byte) error {
		ctx, span := tr.Start(ctx, "outbox.handle")
		defer span.End()

		start := time.Now()
		err := retry.Do(ctx, func() error { return h(ctx, data) }, pol)
		outboxHandlerLatency.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			outboxHandlerErrors.WithLabelValues(kind.String()).Inc()
		}
		return err
	}
}

// MakeGlobalOutboxHandler routes stored outbox rows to the event publisher.
func MakeGlobalOutboxHandler(pub kafka.Events, pol retry.Policy) outbox.GlobalHandler {
	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		switch kind {
		case outbox.KindSecurityBreach:
			base := func(ctx context.Context, data []byte) error {
				var p kafka.SecurityBreach
				if err := json.Unmarshal(data, &p); err != nil {
					return fmt.Errorf("%w: security-breach: %v", errPayload, err)
				}
				return pub.PublishSecurityBreach(ctx, p)
			}
			return instrument(kind, base, pol), nil
		case outbox.KindMaterialRequested:
			base := func(ctx context.Context, data []byte) error {
				var p kafka.MaterialRequested
				if err := json.Unmarshal(data, &p); err != nil {
					return fmt.Errorf("%w: material-requested: %v", errPayload, err)
				}
				return pub.PublishMaterialRequested(ctx, p)
			}
			return instrument(kind, base, pol), nil
		default:
			return nil, fmt.Errorf("unsupported outbox kind: %d", kind)
		}
	}
}
