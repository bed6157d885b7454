package idempotency

import (
	"context"
	"fmt"
	"time"

	"backend/internal/common"

	"github.com/redis/go-redis/v9"
)

// 幂等键的保留时长，超过后重试按新请求处理
const defaultTTL = 24 * time.Hour

// Store 幂等键存储
// 调用方提供的幂等键与首次处理产生的事件ID绑定，
// 重试命中时直接返回原事件ID，避免重复入账。
type Store interface {
	// Reserve 尝试占用幂等键
	// 首次占用返回 (true, "")；已被占用返回 (false, 原事件ID)。
	Reserve(ctx context.Context, tenantID, key string) (bool, string, error)

	// Bind 把幂等键与处理结果绑定
	Bind(ctx context.Context, tenantID, key, eventID string) error

	// Forget 释放幂等键（处理失败时回滚占用，之后的重试按新请求处理）
	Forget(ctx context.Context, tenantID, key string) error
}

// RedisStore 基于 Redis 的幂等键存储
// 键自带 TTL，不占用无界的进程内存。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore 创建幂等键存储
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: defaultTTL}
}

func (s *RedisStore) redisKey(tenantID, key string) string {
	return fmt.Sprintf("idem:%s:%s", tenantID, key)
}

// Reserve 尝试占用幂等键
func (s *RedisStore) Reserve(ctx context.Context, tenantID, key string) (bool, string, error) {
	// 占位值表示"处理中"，Bind 之后才是事件ID
	ok, err := s.rdb.SetNX(ctx, s.redisKey(tenantID, key), "pending", s.ttl).Result()
	if err != nil {
		return false, "", common.NewBusinessError(common.KindStoreUnavailable, fmt.Sprintf("占用幂等键失败: %v", err))
	}
	if ok {
		return true, "", nil
	}

	existing, err := s.rdb.Get(ctx, s.redisKey(tenantID, key)).Result()
	if err != nil {
		return false, "", common.NewBusinessError(common.KindStoreUnavailable, fmt.Sprintf("读取幂等键失败: %v", err))
	}
	if existing == "pending" {
		existing = ""
	}
	return false, existing, nil
}

// Bind 把幂等键与事件ID绑定
func (s *RedisStore) Bind(ctx context.Context, tenantID, key, eventID string) error {
	return s.rdb.Set(ctx, s.redisKey(tenantID, key), eventID, s.ttl).Err()
}

// Forget 释放幂等键
func (s *RedisStore) Forget(ctx context.Context, tenantID, key string) error {
	return s.rdb.Del(ctx, s.redisKey(tenantID, key)).Err()
}
