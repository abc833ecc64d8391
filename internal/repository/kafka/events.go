package kafka

import (
	"context"
	"errors"

	"github.com/NordCoder/greensteps/internal/domain/kafka"
)

const (
	TopicSecurity          = "greensteps.auth.security"
	TopicMaterialRequested = "greensteps.materials.requested"
)

// ErrMalformed marks messages that will never decode. Consumers commit past them.
var ErrMalformed = errors.New("malformed message")

// EventsKafka publishes domain events as JSON, one producer per topic.
type EventsKafka struct {
	security  *Producer
	materials *Producer
}

var _ kafka.Events = (*EventsKafka)(nil)

func NewEventsKafka(security, materials *Producer) *EventsKafka {
	return &EventsKafka{security: security, materials: materials}
}

func (e *EventsKafka) PublishSecurityBreach(ctx context.Context, ev kafka.SecurityBreach) error {
	return e.security.PublishJSON(ctx, []byte(ev.UserID.String()), ev)
}

func (e *EventsKafka) PublishMaterialRequested(ctx context.Context, ev kafka.MaterialRequested) error {
	return e.materials.PublishJSON(ctx, []byte(ev.MaterialID.String()), ev)
}

func (e *EventsKafka) Close() error {
	return errors.Join(e.security.Close(), e.materials.Close())
}
