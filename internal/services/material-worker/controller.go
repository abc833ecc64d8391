package material_worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/NordCoder/greensteps/internal/domain/kafka"
	kafkax "github.com/NordCoder/greensteps/internal/repository/kafka"
)

type Controller struct {
	Log *zap.Logger
	Sub *kafkax.Consumer
	UC  *Handler
}

// Run consumes material requests until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	handler := kafkax.JSONHandler(func(ctx context.Context, _ []byte, ev kafka.MaterialRequested) error {
		c.Log.Debug("material-requested", zap.Stringer("material_id", ev.MaterialID))
		return c.UC.HandleRequested(ctx, ev)
	})

	if err := c.Sub.Consume(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		c.Log.Warn("kafka consume", zap.Error(err))
		return err
	}
	return nil
}
