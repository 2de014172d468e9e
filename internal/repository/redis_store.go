package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qcom/banksession/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStore shares credentials between every session using the same namespace,
// which gives cross-tab (and cross-process) persistence.
type RedisStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	origin    string
	logger    *logrus.Logger
}

func NewRedisStore(client *redis.Client, namespace string, ttl time.Duration, logger *logrus.Logger) *RedisStore {
	return &RedisStore{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
		origin:    uuid.New().String(),
		logger:    logger,
	}
}

func (s *RedisStore) key(kind models.TokenKind) string {
	return fmt.Sprintf("session:%s:%s", s.namespace, kind)
}

func (s *RedisStore) channel() string {
	return fmt.Sprintf("session:%s:events", s.namespace)
}

func (s *RedisStore) Get(ctx context.Context, kind models.TokenKind) (string, error) {
	token, err := s.client.Get(ctx, s.key(kind)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", kind, err)
	}
	return token, nil
}

func (s *RedisStore) Set(ctx context.Context, kind models.TokenKind, token string) error {
	if err := s.client.Set(ctx, s.key(kind), token, s.ttl).Err(); err != nil {
		s.logger.WithError(err).WithField("kind", kind).Error("Failed to store credential in Redis")
		return fmt.Errorf("failed to store %s: %w", kind, err)
	}
	return nil
}

// Clear removes both credentials and tells the other sessions of the namespace.
func (s *RedisStore) Clear(ctx context.Context) error {
	keys := make([]string, 0, len(models.Kinds))
	for _, kind := range models.Kinds {
		keys = append(keys, s.key(kind))
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.logger.WithError(err).Error("Failed to clear credentials in Redis")
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	payload, err := json.Marshal(CredentialEvent{
		Namespace: s.namespace,
		Type:      EventCleared,
		Origin:    s.origin,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal credential event: %w", err)
	}

	if err := s.client.Publish(ctx, s.channel(), payload).Err(); err != nil {
		// Credentials are gone; other tabs will notice on their next 401.
		s.logger.WithError(err).Warn("Failed to publish credential event")
	}

	return nil
}

// Watch streams events published by other RedisStores of the same namespace.
// The channel closes when ctx is done.
func (s *RedisStore) Watch(ctx context.Context) (<-chan CredentialEvent, error) {
	pubsub := s.client.Subscribe(ctx, s.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.channel(), err)
	}

	events := make(chan CredentialEvent)
	go func() {
		defer close(events)
		defer func() { _ = pubsub.Close() }()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event CredentialEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.logger.WithError(err).Warn("Ignoring malformed credential event")
					continue
				}
				if event.Origin == s.origin {
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}
