package main

import (
	"database/sql"
	"flag"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/NordCoder/greensteps/internal/obs"
	"github.com/NordCoder/greensteps/migrations"
)

func main() {
	cmd := flag.String("cmd", "up", "goose command: up, down, status, version")
	flag.Parse()

	l, err := obs.NewLogger(obs.LogConfig{Level: "info", App: "greensteps/migrator"})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		l.Fatal("DB_DSN is empty")
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		l.Fatal("set dialect", zap.Error(err))
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		l.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	if err := run(db, *cmd); err != nil {
		l.Fatal("migrate", zap.String("cmd", *cmd), zap.Error(err))
	}
	l.Info("migrations done", zap.String("cmd", *cmd))
}

func run(db *sql.DB, cmd string) error {
	switch cmd {
	case "down":
		return goose.Down(db, ".")
	case "status":
		return goose.Status(db, ".")
	case "version":
		return goose.Version(db, ".")
	default:
		return goose.Up(db, ".")
	}
}
