package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Topics configures the two event streams. Zero values fall back to the
// defaults of GreenStepsTopics.
type Topics struct {
	Partitions         int           `mapstructure:"partitions"`
	ReplicationFactor  int           `mapstructure:"replication_factor"`
	SecurityRetention  time.Duration `mapstructure:"security_retention"`
	MaterialsRetention time.Duration `mapstructure:"materials_retention"`
}

type TopicSpec struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	Retention         time.Duration
	// Compact keeps the latest message per key on top of time retention.
	Compact bool
}

const (
	defaultPartitions         = 3
	defaultSecurityRetention  = 90 * 24 * time.Hour
	defaultMaterialsRetention = 7 * 24 * time.Hour
)

// GreenStepsTopics describes the security and material request topics.
// Security events are an audit trail keyed by user and are only expired.
// Material requests are keyed by material, so compaction drops redeliveries
// of the same request.
func GreenStepsTopics(t Topics) []TopicSpec {
	if t.Partitions <= 0 {
		t.Partitions = defaultPartitions
	}
	if t.ReplicationFactor <= 0 {
		t.ReplicationFactor = 1
	}
	if t.SecurityRetention <= 0 {
		t.SecurityRetention = defaultSecurityRetention
	}
	if t.MaterialsRetention <= 0 {
		t.MaterialsRetention = defaultMaterialsRetention
	}
	return []TopicSpec{
		{
			Name:              TopicSecurity,
			Partitions:        t.Partitions,
			ReplicationFactor: t.ReplicationFactor,
			Retention:         t.SecurityRetention,
		},
		{
			Name:              TopicMaterialRequested,
			Partitions:        t.Partitions,
			ReplicationFactor: t.ReplicationFactor,
			Retention:         t.MaterialsRetention,
			Compact:           true,
		},
	}
}

// SpecFor returns the spec of a known topic, or a plain one for anything else.
func SpecFor(topic string, t Topics) TopicSpec {
	for _, s := range GreenStepsTopics(t) {
		if s.Name == topic {
			return s
		}
	}
	return TopicSpec{Name: topic, Partitions: 1, ReplicationFactor: 1}
}

func (s TopicSpec) topicConfig() kafka.TopicConfig {
	tc := kafka.TopicConfig{
		Topic:             s.Name,
		NumPartitions:     s.Partitions,
		ReplicationFactor: s.ReplicationFactor,
	}
	if s.Retention > 0 {
		tc.ConfigEntries = append(tc.ConfigEntries, kafka.ConfigEntry{
			ConfigName:  "retention.ms",
			ConfigValue: strconv.FormatInt(s.Retention.Milliseconds(), 10),
		})
	}
	policy := "delete"
	if s.Compact {
		policy = "compact,delete"
	}
	tc.ConfigEntries = append(tc.ConfigEntries, kafka.ConfigEntry{ConfigName: "cleanup.policy", ConfigValue: policy})
	return tc
}

// EnsureTopics creates the missing topics through the controller and waits
// until every partition has a leader or ctx ends.
func EnsureTopics(ctx context.Context, brokers []string, specs []TopicSpec, log *zap.Logger) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers")
	}
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("kafka dial: %w", err)
	}
	defer conn.Close()

	ctrl, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller: %w", err)
	}
	cc, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(ctrl.Host, strconv.Itoa(ctrl.Port)))
	if err != nil {
		return fmt.Errorf("kafka dial controller: %w", err)
	}
	defer cc.Close()

	configs := make([]kafka.TopicConfig, 0, len(specs))
	for _, s := range specs {
		configs = append(configs, s.topicConfig())
	}
	if err := cc.CreateTopics(configs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("kafka create topics: %w", err)
	}

	for _, s := range specs {
		if err := waitTopicReady(ctx, conn, s.Name); err != nil {
			return err
		}
		log.Info("topic ready",
			zap.String("topic", s.Name),
			zap.Int("partitions", s.Partitions),
			zap.Duration("retention", s.Retention),
			zap.Bool("compact", s.Compact),
		)
	}
	return nil
}

func waitTopicReady(ctx context.Context, conn *kafka.Conn, topic string) error {
	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second
	for {
		parts, err := conn.ReadPartitions(topic)
		if err == nil && len(parts) > 0 && allHaveLeader(parts) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("topic %s not ready: %w", topic, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func allHaveLeader(parts []kafka.Partition) bool {
	for _, p := range parts {
		if p.Leader.ID == -1 {
			return false
		}
	}
	return true
}
