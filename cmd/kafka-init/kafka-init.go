// Command kafka-init creates the GreenSteps event topics before the api and
// the material worker start. Settings come from the environment only.
package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/greensteps/internal/obs"
	kafkax "github.com/NordCoder/greensteps/internal/repository/kafka"
)

func main() {
	l, err := obs.NewLogger(obs.LogConfig{Level: env("LOG_LEVEL", "info"), App: "greensteps/kafka-init", Env: env("ENV", "dev")})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	brokers := splitList(env("KAFKA_BROKERS", "kafka:9092"))
	topics := kafkax.Topics{
		Partitions:         envInt("KAFKA_PARTITIONS", 3),
		ReplicationFactor:  envInt("KAFKA_RF", 1),
		SecurityRetention:  envDuration("KAFKA_SECURITY_RETENTION", 0),
		MaterialsRetention: envDuration("KAFKA_MATERIALS_RETENTION", 0),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	specs := kafkax.GreenStepsTopics(topics)
	if err := kafkax.EnsureTopics(ctx, brokers, specs, l); err != nil {
		l.Fatal("ensure topics", zap.Strings("brokers", brokers), zap.Error(err))
	}
	l.Info("kafka-init ok", zap.Int("topics", len(specs)))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil && n > 0 {
		return n
	}
	return def
}

// envDuration returns def for unset or unparsable values; zero keeps the
// topic defaults.
func envDuration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(k)); err == nil && d > 0 {
		return d
	}
	return def
}
