package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisRepository holds upload cancellation flags. A flag outlives the
// upload's processing window and then expires on its own.
type RedisRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisRepository(rdb *redis.Client, ttl time.Duration) *RedisRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisRepository{rdb: rdb, ttl: ttl}
}

func cancelKey(uploadID uuid.UUID) string {
	return "upload:cancel:" + uploadID.String()
}

func (r *RedisRepository) RequestCancel(ctx context.Context, uploadID uuid.UUID) error {
	return r.rdb.Set(ctx, cancelKey(uploadID), "true", r.ttl).Err()
}

func (r *RedisRepository) IsCancelled(ctx context.Context, uploadID uuid.UUID) (bool, error) {
	exists, err := r.rdb.Exists(ctx, cancelKey(uploadID)).Result()
	return exists == 1, err
}

func (r *RedisRepository) ClearCancel(ctx context.Context, uploadID uuid.UUID) error {
	return r.rdb.Del(ctx, cancelKey(uploadID)).Err()
}
