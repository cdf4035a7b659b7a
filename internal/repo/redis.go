package repo

import (
	"context"
	"time"

	"pokertable-service/internal/config"
	"pokertable-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var RDB *redis.Client

func InitRedis() {
	conf := config.GlobalConfig.Redis
	RDB = redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})

	_, err := RDB.Ping(context.Background()).Result()
	if err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
}

// RedisLocker is a SETNX lock with a TTL so a crashed holder cannot wedge
// the key.
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, key, 1, ttl).Result()
}

func (l *RedisLocker) Unlock(ctx context.Context, key string) {
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		logger.Log.Warn("redis unlock failed", zap.String("key", key), zap.Error(err))
	}
}
