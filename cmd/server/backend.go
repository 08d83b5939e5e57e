package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/localnerve/eagleview/internal/config"
	"github.com/localnerve/eagleview/internal/database"
	"github.com/localnerve/eagleview/internal/gateway"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// backend is the persistence side of the gateway plus what it holds open
type backend struct {
	store       gateway.Store
	newIdentity func() (gateway.Identity, error)
	feed        gateway.Feed
	db          *gorm.DB
	redis       *redis.Client
}

func (b *backend) Close(log *zap.Logger) {
	if err := b.feed.Close(); err != nil {
		log.Warn("failed to close feed", zap.Error(err))
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			log.Warn("failed to close redis", zap.Error(err))
		}
	}
	if b.db != nil {
		if err := database.Close(b.db); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func (b *backend) redisClient(cfg *config.Config) *redis.Client {
	if b.redis == nil {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	return b.redis
}

func newBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backend, error) {
	b := &backend{}

	switch cfg.FeedType {
	case config.FeedRedis:
		client := b.redisClient(cfg)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		b.feed = gateway.NewRedisFeed(client, log)
	case config.FeedNATS:
		nc, err := gateway.ConnectNATS(cfg.NATSURL, log)
		if err != nil {
			return nil, err
		}
		b.feed = gateway.NewNATSFeed(nc, log)
	default:
		b.feed = gateway.NewMemoryFeed()
	}

	switch cfg.Backend {
	case config.BackendLocal:
		var kv gateway.KV = gateway.NewMemoryKV()
		if cfg.RedisAddr != "" {
			kv = gateway.NewRedisKV(b.redisClient(cfg))
		}
		b.store = gateway.NewLocalStore(kv, b.feed, log)
		b.newIdentity = func() (gateway.Identity, error) {
			return gateway.NewLocalIdentity(kv), nil
		}
		log.Info("using local backend", zap.Bool("redis_kv", cfg.RedisAddr != ""))

	default:
		db, err := database.Connect(cfg, log)
		if err != nil {
			b.Close(log)
			return nil, err
		}
		b.db = db
		if err := database.AutoMigrate(db); err != nil {
			b.Close(log)
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		b.store = gateway.NewStore(db, b.feed, log)

		authz := gateway.AuthorizerConfig{URL: cfg.AuthzURL, ClientID: cfg.AuthzClientID, RedirectURL: cfg.AuthzURL}
		b.newIdentity = func() (gateway.Identity, error) {
			return gateway.NewAuthorizerIdentity(authz, log)
		}
		log.Info("using remote backend", zap.String("db_type", cfg.DBType), zap.String("authorizer", cfg.AuthzURL))
	}

	return b, nil
}
