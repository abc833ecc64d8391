package api_config

import (
	"net/http"
	"strings"
	"time"

	"github.com/NordCoder/greensteps/internal/httpclient"
	"github.com/NordCoder/greensteps/internal/obs"
	"github.com/NordCoder/greensteps/internal/outbox"
	kafkax "github.com/NordCoder/greensteps/internal/repository/kafka"
	pg "github.com/NordCoder/greensteps/internal/repository/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	TrustProxy      bool          `mapstructure:"trust_proxy"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
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

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    "greensteps/" + c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

type Auth struct {
	JWTSecret               string        `mapstructure:"jwt_secret"`
	AccessTTL               time.Duration `mapstructure:"access_ttl"`
	RefreshTTL              time.Duration `mapstructure:"refresh_ttl"`
	MaxRefreshTokensPerUser int           `mapstructure:"max_refresh_tokens_per_user"`
	BcryptCost              int           `mapstructure:"bcrypt_cost"`
}

type Cookie struct {
	Enabled  bool   `mapstructure:"enabled"`
	Name     string `mapstructure:"name"`
	Path     string `mapstructure:"path"`
	Domain   string `mapstructure:"domain"`
	Secure   bool   `mapstructure:"secure"`
	SameSite string `mapstructure:"same_site"`
}

// SameSiteMode maps the configured name onto net/http. Unknown names fall back to Lax.
func (c Cookie) SameSiteMode() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

type Limit struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type RateLimits struct {
	Standard      Limit         `mapstructure:"standard"`
	Auth          Limit         `mapstructure:"auth"`
	AI            Limit         `mapstructure:"ai"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type Captcha struct {
	Secret            string `mapstructure:"secret"`
	VerifyURL         string `mapstructure:"verify_url"`
	RequireOnRegister bool   `mapstructure:"require_on_register"`
}

type Blocklist struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	TTL        time.Duration `mapstructure:"ttl"`
	RetryAfter time.Duration `mapstructure:"retry_after"`
}

// Impact points at the plan generation service. An empty URL answers every
// generation with 503.
type Impact struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Kafka struct {
	Enabled bool          `mapstructure:"enabled"`
	Brokers []string      `mapstructure:"brokers"`
	Topics  kafkax.Topics `mapstructure:"topics"`
}

type Config struct {
	App        App               `mapstructure:"app"`
	Server     Server            `mapstructure:"server"`
	DB         pg.Config         `mapstructure:"db"`
	OTEL       OTEL              `mapstructure:"otel"`
	Log        Log               `mapstructure:"log"`
	Auth       Auth              `mapstructure:"auth"`
	Cookie     Cookie            `mapstructure:"cookie"`
	RateLimits RateLimits        `mapstructure:"rate_limits"`
	Captcha    Captcha           `mapstructure:"captcha"`
	Blocklist  Blocklist         `mapstructure:"blocklist"`
	Impact     Impact            `mapstructure:"impact"`
	Kafka      Kafka             `mapstructure:"kafka"`
	Outbox     outbox.Config     `mapstructure:"outbox"`
	HTTPClient httpclient.Config `mapstructure:"http_client"`
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
