package storage

import (
	"fmt"

	"github.com/johnwmail/pasties/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// mongoCollection holds the pastes in the configured Mongo database
const mongoCollection = "pastes"

// NewStore opens the backend selected by cfg.DBType. With REDIS_ADDR set the
// backend is wrapped in a read-through cache.
func NewStore(cfg *config.Config, logger *zap.Logger) (PasteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := openBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr == "" {
		return store, nil
	}
	logger.Info("redis cache enabled",
		zap.String("addr", cfg.RedisAddr),
		zap.Duration("ttl", cfg.CacheTTL))
	return NewCachedStore(store, &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cfg.CacheTTL, logger), nil
}

// sqlOptions carries the engine, DSN and pool settings of cfg
func sqlOptions(cfg *config.Config, logger *zap.Logger) SQLOptions {
	return SQLOptions{
		Driver:          cfg.DBType,
		DSN:             cfg.DSN(),
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		Debug:           logger.Core().Enabled(zap.DebugLevel),
	}
}

func openBackend(cfg *config.Config, logger *zap.Logger) (PasteStore, error) {
	if cfg.SQLDriver() {
		return NewSQLStore(sqlOptions(cfg, logger), logger)
	}

	switch cfg.DBType {
	case config.DBTypeMongoDB:
		return NewMongoStore(cfg.MongoURI, cfg.MongoDatabase(), mongoCollection, logger)
	case config.DBTypeDynamoDB:
		return NewDynamoStore(cfg.DynamoDBTable, cfg.AWSRegion, cfg.DynamoDBEndpoint, logger)
	case config.DBTypeS3:
		return NewS3Store(cfg.S3Bucket, cfg.S3Prefix, cfg.AWSRegion, cfg.S3Endpoint, logger)
	case config.DBTypeMemory:
		logger.Warn("memory storage selected, pastes are lost on restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", cfg.DBType)
	}
}
