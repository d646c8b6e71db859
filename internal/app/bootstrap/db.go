// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	userstore "github.com/dalemusser/stratabook/internal/app/store/users"
	"github.com/dalemusser/stratabook/internal/app/system/indexes"
	"github.com/dalemusser/stratabook/internal/app/system/mailer"
	"github.com/dalemusser/stratabook/internal/app/system/seeding"
	"github.com/dalemusser/stratabook/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB, to Redis when redis_url is set, and
// prepares the SMTP mailer.
//
// WAFFLE calls this after configuration is loaded but before EnsureSchema and
// Startup. Connection attempts honor ctx, which carries coreCfg.DBConnectTimeout.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	// Configure MongoDB connection pool
	poolCfg := wafflemongo.DefaultPoolConfig()
	if appCfg.MongoMaxPoolSize > 0 {
		poolCfg.MaxPoolSize = appCfg.MongoMaxPoolSize
	}
	if appCfg.MongoMinPoolSize > 0 {
		poolCfg.MinPoolSize = appCfg.MongoMinPoolSize
	}

	client, err := wafflemongo.ConnectWithPool(ctx, appCfg.MongoURI, appCfg.MongoDatabase, poolCfg)
	if err != nil {
		return DBDeps{}, err
	}

	db := client.Database(appCfg.MongoDatabase)

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", poolCfg.MaxPoolSize),
		zap.Uint64("min_pool_size", poolCfg.MinPoolSize),
	)

	deps := DBDeps{
		MongoClient:   client,
		MongoDatabase: db,
	}

	if appCfg.RedisURL != "" {
		opts, err := redis.ParseURL(appCfg.RedisURL)
		if err != nil {
			_ = client.Disconnect(ctx)
			return DBDeps{}, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The cache is optional; the license checker falls back to
			// asking the server on every call.
			logger.Warn("redis unreachable at startup", zap.String("addr", opts.Addr), zap.Error(err))
		} else {
			logger.Info("connected to Redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
		}
		deps.Redis = rdb
	}

	deps.Mailer = mailer.New(mailer.Config{
		Host:     appCfg.MailSMTPHost,
		Port:     appCfg.MailSMTPPort,
		User:     appCfg.MailSMTPUser,
		Pass:     appCfg.MailSMTPPass,
		From:     appCfg.MailFrom,
		FromName: appCfg.MailFromName,
	}, logger)
	logger.Info("initialized email mailer",
		zap.String("host", appCfg.MailSMTPHost),
		zap.Int("port", appCfg.MailSMTPPort),
	)

	return deps, nil
}

// EnsureSchema creates collections, validators and indexes, then seeds the
// configured admin account.
//
// The context has a timeout based on coreCfg.IndexBootTimeout, so long-running
// migrations should respect context cancellation.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase

	// Collections first so indexes land on existing collections.
	logger.Info("ensuring collections and validators")
	if err := validators.EnsureAll(ctx, db); err != nil {
		logger.Error("failed to ensure validators", zap.Error(err))
		return err
	}

	logger.Info("ensuring database indexes")
	if err := indexes.EnsureAll(ctx, db); err != nil {
		logger.Error("failed to ensure indexes", zap.Error(err))
		return err
	}

	if err := seeding.EnsureAdmin(ctx, userstore.New(db), appCfg.SeedAdminEmail, appCfg.SeedAdminName, logger); err != nil {
		logger.Error("failed to seed admin user", zap.Error(err))
		return err
	}

	logger.Info("database schema ensured successfully")
	return nil
}
