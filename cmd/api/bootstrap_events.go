package main

import (
	"context"

	"go.uber.org/zap"

	config "github.com/NordCoder/greensteps/internal/config/api"
	"github.com/NordCoder/greensteps/internal/obs/retry"
	"github.com/NordCoder/greensteps/internal/outbox"
	"github.com/NordCoder/greensteps/internal/repository/kafka"
	pg "github.com/NordCoder/greensteps/internal/repository/postgres"
)

// initOutboxRelay returns nil when kafka is disabled; rows then stay in the
// outbox table until a relay with kafka access runs.
func initOutboxRelay(ctx context.Context, cfg *config.Config, db *pg.DB, l *zap.Logger) (*outbox.Runner, func() error) {
	if !cfg.Kafka.Enabled {
		l.Warn("kafka disabled, outbox relay not started")
		return nil, func() error { return nil }
	}
	events := kafka.BootstrapEvents(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics, l)
	dispatch := outbox.MakeGlobalOutboxHandler(events, retry.DefaultPublishPolicy(l))
	return outbox.NewOutboxRunner(l, pg.NewOutboxRepo(db), dispatch, cfg.Outbox), events.Close
}
