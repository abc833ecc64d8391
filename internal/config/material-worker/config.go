package material_worker_config

import (
	"time"

	"github.com/NordCoder/greensteps/internal/httpclient"
	"github.com/NordCoder/greensteps/internal/obs"
	kafkax "github.com/NordCoder/greensteps/internal/repository/kafka"
	pginfra "github.com/NordCoder/greensteps/internal/repository/postgres"
)

type KafkaIn struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	GroupID       string   `mapstructure:"group_id"`
	FromBeginning bool     `mapstructure:"from_beginning"`
}

type Generator struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Server struct {
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Config struct {
	Env        string            `mapstructure:"env"`
	DB         pginfra.Config    `mapstructure:"db"`
	In         KafkaIn           `mapstructure:"kafka_in"`
	Topics     kafkax.Topics     `mapstructure:"topics"`
	Generator  Generator         `mapstructure:"generator"`
	HTTPClient httpclient.Config `mapstructure:"http_client"`
	Server     Server            `mapstructure:"server"`
	OTEL       OTEL              `mapstructure:"otel"`
	LogLevel   string            `mapstructure:"log_level"`
	LogPretty  bool              `mapstructure:"log_pretty"`
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{Level: c.LogLevel, Pretty: c.LogPretty, App: "greensteps/material-worker", Env: c.Env}
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
