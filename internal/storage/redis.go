package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{
		client: client,
	}
}

func redisKey(namespace, key string) string {
	return fmt.Sprintf("auth_state:%s:%s", namespace, key)
}

func (r *RedisStorage) GetState(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := validEntry(namespace, key); err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, redisKey(namespace, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth state: %w", err)
	}

	return data, nil
}

// SaveState stores the blob without expiry; it lives until DeleteState.
func (r *RedisStorage) SaveState(ctx context.Context, namespace, key string, data []byte) error {
	if err := validEntry(namespace, key); err != nil {
		return err
	}

	if err := r.client.Set(ctx, redisKey(namespace, key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save auth state: %w", err)
	}

	return nil
}

func (r *RedisStorage) DeleteState(ctx context.Context, namespace, key string) error {
	if err := validEntry(namespace, key); err != nil {
		return err
	}

	if err := r.client.Del(ctx, redisKey(namespace, key)).Err(); err != nil {
		return fmt.Errorf("failed to delete auth state: %w", err)
	}

	return nil
}
