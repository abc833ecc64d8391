package main

import (
	"go.uber.org/zap"

	config "github.com/NordCoder/greensteps/internal/config/api"
	"github.com/NordCoder/greensteps/internal/obs"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(cfg.AsLoggerConfig())
}
