package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore はRedisの単一キーにトークンを保存するStore。
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore はRedisStoreを生成する。
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// OpenRedis はREDIS_URLからクライアントを生成する。
// 接続確認にはPingを使用すること。
func OpenRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Save はトークンを有効期限なしで書き込む。
func (s *RedisStore) Save(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.key, token, 0).Err(); err != nil {
		return &StorageError{Backend: "redis", Op: "save", Err: err}
	}
	return nil
}

// Load はトークンを読み込む。キーが無い場合は未保存として扱う。
func (s *RedisStore) Load(ctx context.Context) (string, bool, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Backend: "redis", Op: "load", Err: err}
	}
	if token == "" {
		return "", false, nil
	}
	return token, true, nil
}

// Clear はキーを削除する。DELは存在しないキーに対しても成功する。
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return &StorageError{Backend: "redis", Op: "clear", Err: err}
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
