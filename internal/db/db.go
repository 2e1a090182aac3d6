package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/david/pimm/internal/config"
)

func Connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing db config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error connecting to db: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging db: %w", err)
	}

	return pool, nil
}

// Open returns the repository selected by STORE_DRIVER. Postgres stores are
// migrated before they are returned.
func Open(ctx context.Context, cfg *config.Configuration, log *zap.Logger) (Repository, error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using in-memory store; data is lost on restart")
		return NewMemStore(), nil
	}

	pool, err := Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := ApplyMigrations(ctx, pool, log); err != nil {
		pool.Close()
		return nil, err
	}
	return NewStore(pool), nil
}
