package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func InitRedis(logger *zap.Logger) (*redis.Client, error) {
	host := getEnv("REDIS_HOST", "localhost")
	port := getEnv("REDIS_PORT", "6379")
	password := getEnv("REDIS_PASSWORD", "")

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

func GetMenu(ctx context.Context, rdb *redis.Client, restaurant string) ([]byte, error) {
	key := fmt.Sprintf("menu:%s", restaurant)
	return rdb.Get(ctx, key).Bytes()
}

func SetMenu(ctx context.Context, rdb *redis.Client, restaurant string, menu interface{}, ttl time.Duration) error {
	key := fmt.Sprintf("menu:%s", restaurant)
	data, err := json.Marshal(menu)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, data, ttl).Err()
}

func DeleteMenu(ctx context.Context, rdb *redis.Client, restaurant string) error {
	key := fmt.Sprintf("menu:%s", restaurant)
	return rdb.Del(ctx, key).Err()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
