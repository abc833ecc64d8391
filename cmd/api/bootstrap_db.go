package main

import (
	"context"

	config "github.com/NordCoder/greensteps/internal/config/api"
	pg "github.com/NordCoder/greensteps/internal/repository/postgres"
)

func initDB(ctx context.Context, cfg *config.Config) (*pg.DB, error) {
	return pg.NewDB(ctx, cfg.DB)
}
