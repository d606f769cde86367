package whatsapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// CredentialStore persists the gateway session blob between restarts so a
// reconnect can reattach without a new QR pairing.
type CredentialStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, credentials string) error
	Delete(ctx context.Context) error
}

// RedisCredentialStore keeps the session blob in Redis.
type RedisCredentialStore struct {
	client *redis.Client
	key    string
}

func NewRedisCredentialStore(client *redis.Client, sessionName string) *RedisCredentialStore {
	if client == nil {
		return nil
	}
	if sessionName == "" {
		sessionName = "main-session"
	}
	return &RedisCredentialStore{
		client: client,
		key:    "whatsapp:credentials:" + sessionName,
	}
}

func (s *RedisCredentialStore) Load(ctx context.Context) (string, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("whatsapp: load credentials: %w", err)
	}
	return val, nil
}

func (s *RedisCredentialStore) Save(ctx context.Context, credentials string) error {
	if credentials == "" {
		return nil
	}
	if err := s.client.Set(ctx, s.key, credentials, 0).Err(); err != nil {
		return fmt.Errorf("whatsapp: save credentials: %w", err)
	}
	return nil
}

func (s *RedisCredentialStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("whatsapp: delete credentials: %w", err)
	}
	return nil
}
