package kafka

import (
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// headerCarrier lets the otel propagator read and write kafka headers in place.
type headerCarrier []kafka.Header

func (h *headerCarrier) Get(k string) string {
	for _, x := range *h {
		if x.Key == k {
			return string(x.Value)
		}
	}
	return ""
}

// Set replaces an existing header so a re-injected trace does not duplicate it.
func (h *headerCarrier) Set(k, v string) {
	for i, x := range *h {
		if x.Key == k {
			(*h)[i].Value = []byte(v)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: k, Value: []byte(v)})
}

func (h *headerCarrier) Keys() []string {
	ks := make([]string, 0, len(*h))
	for _, x := range *h {
		ks = append(ks, x.Key)
	}
	return ks
}

// eventName is the domain event a topic carries.
func eventName(topic string) string {
	switch topic {
	case TopicSecurity:
		return "security_breach"
	case TopicMaterialRequested:
		return "material_requested"
	default:
		return topic
	}
}

// Security events are keyed by user id and material requests by material
// id, so the key names the affected entity.
func eventAttrs(topic string, key []byte) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.MessagingSystemKafka,
		semconv.MessagingDestinationName(topic),
		attribute.String("greensteps.event", eventName(topic)),
	}
	switch topic {
	case TopicSecurity:
		attrs = append(attrs, attribute.String("greensteps.user_id", string(key)))
	case TopicMaterialRequested:
		attrs = append(attrs, attribute.String("greensteps.material_id", string(key)))
	default:
		attrs = append(attrs, attribute.String("messaging.kafka.message.key", string(key)))
	}
	return attrs
}
