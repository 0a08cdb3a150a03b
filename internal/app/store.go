package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/toplane-coaching/internal/channels"
	"github.com/bissquit/toplane-coaching/internal/channels/dynamodb"
	"github.com/bissquit/toplane-coaching/internal/channels/file"
	"github.com/bissquit/toplane-coaching/internal/channels/memory"
	channelspostgres "github.com/bissquit/toplane-coaching/internal/channels/postgres"
	"github.com/bissquit/toplane-coaching/internal/channels/redis"
	"github.com/bissquit/toplane-coaching/internal/config"
	"github.com/bissquit/toplane-coaching/internal/pkg/postgres"
	"github.com/bissquit/toplane-coaching/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store drivers.
const (
	driverMemory   = "memory"
	driverFile     = "file"
	driverRedis    = "redis"
	driverPostgres = "postgres"
	driverDynamoDB = "dynamodb"
)

const defaultOpenTimeout = 10 * time.Second

func storeOpenTimeout(cfg config.StoreConfig) time.Duration {
	if cfg.Driver == driverPostgres && cfg.Postgres.ConnectTimeout > 0 {
		// every attempt gets its own connect timeout plus backoff between them
		attempts := max(cfg.Postgres.ConnectAttempts, 1)
		return time.Duration(attempts)*cfg.Postgres.ConnectTimeout + 30*time.Second
	}
	return defaultOpenTimeout
}

func newMemoryStore() channels.Store {
	return memory.New()
}

// openStore builds the primary channel store. The returned pool is non-nil
// only for the postgres driver.
func openStore(ctx context.Context, cfg config.StoreConfig) (channels.Store, *pgxpool.Pool, error) {
	switch cfg.Driver {
	case driverMemory, "":
		return newMemoryStore(), nil, nil

	case driverFile:
		store, err := file.Open(cfg.File.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		slog.Info("channel store opened", "driver", cfg.Driver, "path", cfg.File.Path)
		return store, nil, nil

	case driverRedis:
		store, err := redis.New(ctx, redis.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		slog.Info("channel store opened", "driver", cfg.Driver, "addr", cfg.Redis.Addr)
		return store, nil, nil

	case driverPostgres:
		if cfg.Postgres.AutoMigrate {
			if err := postgres.Migrate(cfg.Postgres.URL, migrations.FS, "up"); err != nil {
				return nil, nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		db, err := postgres.Connect(ctx, postgres.Config{
			URL:             cfg.Postgres.URL,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			ConnectAttempts: cfg.Postgres.ConnectAttempts,
			ConnectTimeout:  cfg.Postgres.ConnectTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		slog.Info("channel store opened", "driver", cfg.Driver)
		return channelspostgres.NewStore(db), db, nil

	case driverDynamoDB:
		client, err := dynamodb.NewClient(ctx, dynamodb.Config{
			Table:    cfg.DynamoDB.Table,
			Region:   cfg.DynamoDB.Region,
			Endpoint: cfg.DynamoDB.Endpoint,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create dynamodb client: %w", err)
		}
		slog.Info("channel store opened", "driver", cfg.Driver, "table", cfg.DynamoDB.Table)
		return dynamodb.NewStore(client, cfg.DynamoDB.Table), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
