package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	config "github.com/NordCoder/greensteps/internal/config/material-worker"
	"github.com/NordCoder/greensteps/internal/httpclient"
	"github.com/NordCoder/greensteps/internal/obs"
	"github.com/NordCoder/greensteps/internal/repository/kafka"
	pg "github.com/NordCoder/greensteps/internal/repository/postgres"
	worker "github.com/NordCoder/greensteps/internal/services/material-worker"
)

func wire(cfg *config.Config, db *pg.DB, cons *kafka.Consumer, l *zap.Logger) *worker.Controller {
	uc := &worker.Handler{
		Materials: pg.NewMaterialRepo(db),
		Generator: worker.HTTPGenerator{URL: cfg.Generator.URL, Client: httpclient.New(cfg.HTTPClient)},
		Log:       l,
		Timeout:   cfg.Generator.Timeout,
	}
	return &worker.Controller{Log: l, Sub: cons, UC: uc}
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to yaml config")
	flag.Parse()

	root, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	if cfg.Generator.URL == "" {
		l.Warn("generator.url is empty, every material will be marked failed")
	}

	otelCloser, err := obs.SetupOTel(root, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	db, err := pg.NewDB(root, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, db.Ping, l)

	cons := kafka.BootstrapConsumer(root, &kafka.ConsumerConfig{
		Brokers:       cfg.In.Brokers,
		GroupID:       cfg.In.GroupID,
		Topic:         cfg.In.Topic,
		FromBeginning: cfg.In.FromBeginning,
		Logger:        l,
	}, cfg.Topics, l)
	defer func() { _ = cons.Close() }()

	ctrl := wire(cfg, db, cons, l)

	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.Run(root) }()

	select {
	case <-root.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("controller error", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
