package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const ensureTimeout = 15 * time.Second

// BootstrapConsumer makes sure the consumed topic exists with its
// configured settings. A broker that is not ready yet is only logged; the
// reader keeps retrying on its own.
func BootstrapConsumer(ctx context.Context, cfg *ConsumerConfig, topics Topics, logger *zap.Logger) *Consumer {
	ensure(ctx, cfg.Brokers, []TopicSpec{SpecFor(cfg.Topic, topics)}, logger)
	return NewConsumer(cfg)
}

// BootstrapEvents makes sure both event topics exist and returns a publisher.
func BootstrapEvents(ctx context.Context, brokers []string, topics Topics, logger *zap.Logger) *EventsKafka {
	ensure(ctx, brokers, GreenStepsTopics(topics), logger)
	return NewEventsKafka(
		NewProducer(brokers, TopicSecurity).WithLogger(logger),
		NewProducer(brokers, TopicMaterialRequested).WithLogger(logger),
	)
}

func ensure(ctx context.Context, brokers []string, specs []TopicSpec, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, ensureTimeout)
	defer cancel()
	if err := EnsureTopics(ctx, brokers, specs, logger); err != nil && logger != nil {
		logger.Warn("kafka topics not confirmed", zap.Error(err))
	}
}
