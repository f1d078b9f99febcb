package data

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/parley-ai/parley/internal/conf"
)

// Data holds the optional infrastructure clients. Disabled backends
// stay nil; callers fall back to in-memory behavior.
type Data struct {
	DB    *gorm.DB
	Redis *redis.Client
	MinIO *minio.Client
}

// NewData connects the enabled backends and returns a cleanup func
func NewData(cfg *conf.Config, logger *zap.Logger) (*Data, func(), error) {
	d := &Data{}

	if cfg.Database.Enabled {
		db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.DB = db
		logger.Info("postgres connected", zap.String("host", cfg.Database.Host))
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		d.Redis = client
		logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	if cfg.MinIO.Enabled {
		client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect minio: %w", err)
		}
		d.MinIO = client
		logger.Info("minio connected", zap.String("endpoint", cfg.MinIO.Endpoint))
	}

	cleanup := func() {
		if d.Redis != nil {
			if err := d.Redis.Close(); err != nil {
				logger.Warn("close redis failed", zap.Error(err))
			}
		}
		if d.DB != nil {
			if sqlDB, err := d.DB.DB(); err == nil {
				if err := sqlDB.Close(); err != nil {
					logger.Warn("close postgres failed", zap.Error(err))
				}
			}
		}
	}

	return d, cleanup, nil
}
