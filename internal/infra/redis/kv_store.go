package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// KVStore keeps key-value slots in Redis so a session survives restarts of
// the client process. Keys are namespaced with a prefix; a zero ttl keeps
// values until they are deleted.
type KVStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewKVStore(client *redis.Client, prefix string, ttl time.Duration) *KVStore {
	if prefix == "" {
		prefix = "quizdesk:"
	}
	return &KVStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.key(key), value, s.ttl).Err()
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *KVStore) key(key string) string {
	return s.prefix + key
}
