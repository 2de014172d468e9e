package repository

import (
	"context"
	"fmt"

	"github.com/qcom/banksession/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Backends carries the clients a store may need. Unused fields may be nil.
type Backends struct {
	Redis    *redis.Client
	DynamoDB DynamoDBAPI
}

// NewCredentialStore picks the storage policy named by cfg.Storage.Backend.
func NewCredentialStore(cfg *config.Config, backends Backends, logger *logrus.Logger) (CredentialStore, error) {
	switch cfg.Storage.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "none":
		return HeadlessStore{}, nil
	case "redis":
		if backends.Redis == nil {
			return nil, fmt.Errorf("redis backend selected without a redis client")
		}
		return NewRedisStore(backends.Redis, cfg.Storage.Namespace, cfg.Storage.TTL, logger), nil
	case "dynamodb":
		if backends.DynamoDB == nil {
			return nil, fmt.Errorf("dynamodb backend selected without a dynamodb client")
		}
		return NewDynamoDBStore(backends.DynamoDB, cfg.DynamoDB.TableName, cfg.Storage.Namespace, cfg.Storage.TTL, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Storage.Backend)
	}
}

// Ping checks that a shared backend is reachable. Local stores always succeed.
func Ping(ctx context.Context, backends Backends) error {
	if backends.Redis != nil {
		if err := backends.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping redis: %w", err)
		}
	}
	return nil
}
