// db/redis.go
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dev-mohitbeniwal/archive-gateway/config"
	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
)

var RedisClient *redis.Client

// InitRedis connects the shared client. It is a no-op when no address is configured.
func InitRedis(conf config.RedisConfiguration) error {
	if conf.Addr == "" {
		logger.Info("Redis not configured, using in-process caches only")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         conf.Addr,
		Password:     conf.Password,
		DB:           conf.DB,
		DialTimeout:  conf.DialTimeout,
		ReadTimeout:  conf.ReadTimeout,
		WriteTimeout: conf.WriteTimeout,
		PoolSize:     conf.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	RedisClient = client
	logger.Info("Successfully connected to Redis", zap.String("addr", conf.Addr))
	return nil
}

// Enabled reports whether InitRedis connected a client.
func Enabled() bool {
	return RedisClient != nil
}

func CloseRedis() {
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			logger.Error("Error closing Redis connection", zap.Error(err))
		}
		RedisClient = nil
	}
}

// CacheArchiveName stores the key a name resolved to for ttl.
func CacheArchiveName(ctx context.Context, name, key string, ttl time.Duration) error {
	err := RedisClient.Set(ctx, fmt.Sprintf("dns:%s", name), key, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to cache archive name: %w", err)
	}
	logger.Debug("Archive name cached successfully", zap.String("name", name), zap.String("key", key))
	return nil
}

// GetCachedArchiveName returns the cached key of name; found is false on a miss.
func GetCachedArchiveName(ctx context.Context, name string) (string, bool, error) {
	key, err := RedisClient.Get(ctx, fmt.Sprintf("dns:%s", name)).Result()
	if err == redis.Nil {
		logger.Debug("Archive name not found in cache", zap.String("name", name))
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("failed to get archive name from cache: %w", err)
	}
	logger.Debug("Archive name retrieved from cache", zap.String("name", name))
	return key, true, nil
}

// RateLimit records one hit for key and reports whether it stays within
// limit hits per sliding window.
func RateLimit(ctx context.Context, key string, limit int, per time.Duration) (bool, error) {
	pipe := RedisClient.Pipeline()
	now := time.Now().UnixNano()
	key = fmt.Sprintf("ratelimit:%s", key)

	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", now-(per.Nanoseconds())))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: now})
	pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, per)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to execute rate limit commands: %w", err)
	}

	count := cmds[2].(*redis.IntCmd).Val()
	allowed := count <= int64(limit)
	logger.Debug("Rate limit check",
		zap.String("key", key),
		zap.Int64("count", count),
		zap.Int("limit", limit),
		zap.Bool("allowed", allowed))
	return allowed, nil
}
