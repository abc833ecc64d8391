package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	config "github.com/NordCoder/greensteps/internal/config/api"
	"github.com/NordCoder/greensteps/internal/obs"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to yaml config")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting api", zap.String("env", cfg.App.Env), zap.String("ver", cfg.App.Version))

	otelShutdown, err := initOTel(rootCtx, cfg)
	if err != nil {
		logger.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := initDB(rootCtx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	a, err := buildHTTPServer(cfg, logger, db)
	if err != nil {
		logger.Fatal("build http", zap.Error(err))
	}
	a.runBackground(rootCtx, cfg, logger)

	relay, closeEvents := initOutboxRelay(rootCtx, cfg, db, logger)
	defer func() { _ = closeEvents() }()
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if relay != nil {
			relay.Run(rootCtx)
		}
	}()

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, db.Ping, logger)

	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- serveHTTP(a.server, logger) }()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal", zap.String("reason", "context canceled"))
	case err := <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(err))
		}
		stop()
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	_ = a.server.Shutdown(shCtx)
	_ = ms.Shutdown(shCtx)
	select {
	case <-relayDone:
	case <-shCtx.Done():
		logger.Warn("outbox relay did not stop in time")
	}
	logger.Info("bye")
}
