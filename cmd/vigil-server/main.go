package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/roadcare/vigil/internal/config"
	"github.com/roadcare/vigil/internal/database"
	"github.com/roadcare/vigil/internal/server"
)

func main() {
	cfg := config.LoadServer()

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if err := run(cfg, sugar); err != nil {
		sugar.Fatalw("server exited with error", "error", err)
	}
}

func run(cfg *config.Server, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.New(cfg, store, server.NewRegistry(0), logger)

	logger.Infow("inference server starting",
		"addr", cfg.Addr(),
		"store", cfg.Store,
		"environment", cfg.Environment,
	)
	return srv.Run(ctx)
}

func openStore(ctx context.Context, cfg *config.Server, logger *zap.SugaredLogger) (database.Store, error) {
	if cfg.Store != "postgres" {
		logger.Infow("using in-memory session store")
		return database.NewMemory(), nil
	}

	logger.Infow("connecting to postgres", "dsn", cfg.DSNForLog())
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	pg, err := database.OpenPostgres(openCtx, cfg.DSN(), cfg.DBMaxConns, logger)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	return pg, nil
}

func buildLogger(cfg *config.Server) (*zap.Logger, error) {
	if cfg.IsDev() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
