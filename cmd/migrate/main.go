package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/bms-fs/order-core/internal/logging"
	"github.com/bms-fs/order-core/internal/store"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// CLI flags
	dbURL := flag.String("database-url", "", "PostgreSQL connection string")
	steps := flag.Int("steps", 1, "Number of migrations to roll back with down")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: migrate [flags] up|down|version\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger, err := logging.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Fall back to environment variables
	_ = godotenv.Load()
	if *dbURL == "" {
		*dbURL = os.Getenv("DATABASE_URL")
	}
	if *dbURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		if err := store.MigrateUp(*dbURL); err != nil {
			logger.Fatal("migrate up failed", zap.Error(err))
		}
	case "down":
		if err := store.MigrateDown(*dbURL, *steps); err != nil {
			logger.Fatal("migrate down failed", zap.Int("steps", *steps), zap.Error(err))
		}
	case "version":
	default:
		flag.Usage()
		os.Exit(2)
	}

	v, dirty, err := store.MigrationVersion(*dbURL)
	if err != nil {
		logger.Fatal("read migration version", zap.Error(err))
	}
	logger.Info("schema version", zap.String("command", cmd), zap.Uint("version", v), zap.Bool("dirty", dirty))
}
