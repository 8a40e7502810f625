// cache — тонкая обёртка над Redis для хранения сессионных данных бота
// (токены и флаги входа). Ошибки транспорта возвращаются наружу как есть;
// политику их обработки определяет вызывающий слой (session.TokenStore).
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"consultbot/internal/config"
)

//go:generate mockgen -source=cache.go -destination=../../mocks/mock_cache.go -package=mocks

// ErrKeyNotFound — ключа нет в кэше (или его TTL истёк).
var ErrKeyNotFound = errors.New("key not found")

// Cache — минимальный контракт key-value кэша с TTL.
type Cache interface {
	// Set сохраняет строковое значение с TTL (0 — без истечения).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get возвращает значение или ErrKeyNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Del удаляет ключи; отсутствие ключа ошибкой не считается.
	Del(ctx context.Context, keys ...string) error
	// Close закрывает соединение с кэшем.
	Close() error
}

type redisCache struct {
	rdb *redis.Client
}

// New создаёт клиент Redis по конфигурации и проверяет соединение.
// Fail-fast на старте: если Redis недоступен, бот не запускается —
// деградация «все разлогинены» допустима только при отказе в рантайме.
func New(ctx context.Context, cfg config.RedisConfig) (Cache, error) {
	const op = "cache.New"

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		DB:       cfg.DB,
		Password: cfg.Password,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &redisCache{rdb: rdb}, nil
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}

	return val, err
}

func (c *redisCache) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *redisCache) Close() error {
	return c.rdb.Close()
}
