// Package bootstrap opens the storage and messaging backends selected by the
// configuration. The HTTP server and the scheduler share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/segyhp/tontine-engine/internal/config"
	"github.com/segyhp/tontine-engine/internal/handler"
	"github.com/segyhp/tontine-engine/internal/notify"
	"github.com/segyhp/tontine-engine/internal/repository"
)

// Backend holds the opened stores and the readiness checks for them.
type Backend struct {
	Tontines      repository.TontineRepository
	Notifications repository.NotificationRepository

	// Redis is nil when no redis is configured.
	Redis redis.UniversalClient

	Checks  map[string]handler.Pinger
	closers []func(context.Context) error
}

// Open connects to the configured database driver and, when configured,
// redis.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	b := &Backend{Checks: make(map[string]handler.Pinger)}

	var err error
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		err = b.openPostgres(ctx, cfg)
	case config.DriverMongo:
		err = b.openMongo(ctx, cfg)
	case config.DriverMemory:
		logger.Warn("using in-memory storage; state is lost on restart")
		b.Tontines = repository.NewMemoryTontineRepository()
		b.Notifications = repository.NewMemoryNotificationRepository()
	default:
		err = fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		_ = b.Close(ctx)
		return nil, err
	}

	if client, ok, err := initRedis(cfg); err != nil {
		_ = b.Close(ctx)
		return nil, err
	} else if ok {
		b.Redis = client
		b.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		b.closers = append(b.closers, func(context.Context) error { return client.Close() })
	}

	logger.Info("backends ready",
		zap.String("database_driver", cfg.Database.Driver),
		zap.Bool("redis", b.Redis != nil),
	)
	return b, nil
}

func (b *Backend) openPostgres(ctx context.Context, cfg *config.Config) error {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	b.closers = append(b.closers, func(context.Context) error { return db.Close() })

	if err := repository.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}

	b.Tontines = repository.NewTontineRepository(db)
	b.Notifications = repository.NewNotificationRepository(db)
	b.Checks["database"] = db.PingContext
	return nil
}

func (b *Backend) openMongo(ctx context.Context, cfg *config.Config) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	b.closers = append(b.closers, client.Disconnect)

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	db := repository.OpenMongo(client, cfg.Mongo.Database)
	if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}

	b.Tontines = repository.NewMongoTontineStore(db)
	b.Notifications = repository.NewMongoNotificationStore(db)
	b.Checks["database"] = func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
	return nil
}

// initRedis builds a client from REDIS_URL, falling back to REDIS_HOST. It
// reports false when neither is set.
func initRedis(cfg *config.Config) (*redis.Client, bool, error) {
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, false, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return redis.NewClient(opts), true, nil
	}
	if cfg.Redis.Host == "" {
		return nil, false, nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}), true, nil
}

// Emitter stores every notification and, with redis, also publishes it.
func (b *Backend) Emitter() notify.Emitter {
	store := notify.NewStoreEmitter(b.Notifications)
	if b.Redis == nil {
		return store
	}
	return notify.Fanout{store, notify.NewRedisEmitter(b.Redis)}
}

// Gate deduplicates reminders across scheduler instances when redis is
// available, and within this process otherwise.
func (b *Backend) Gate() notify.Gate {
	if b.Redis == nil {
		return notify.NewMemoryGate()
	}
	return notify.NewRedisGate(b.Redis)
}

// Close releases every opened connection in reverse order.
func (b *Backend) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
