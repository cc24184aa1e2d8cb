package main

import (
	"context"
	"log"
	"os"

	"github.com/safar/electrostore/internal/config"
	"github.com/safar/electrostore/internal/database"
	"github.com/safar/electrostore/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down|status|reset|version] [args...]")
	}

	command := os.Args[1]
	switch command {
	case "up", "down", "status", "reset", "version", "redo", "up-to", "down-to":
	default:
		log.Fatalf("Unknown migration command %q", command)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
	})

	ctx := context.Background()
	db, err := database.NewConnection(ctx, &cfg.Database, logg)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, command, os.Args[2:]...); err != nil {
		log.Fatalf("Run migrations: %v", err)
	}

	log.Printf("Migration command %q completed", command)
}
