package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Пул Redis рассчитан на блокировки коллбеков, кэш меню и Pub/Sub ленты заказов
const (
	redisPoolSize     = 50
	redisMinIdleConns = 5
	redisMaxRetries   = 3
)

// ConnectRedis подключается к Redis.
// Если заданы адреса Sentinel и имя мастера, клиент работает через Sentinel, иначе по REDIS_URL.
func ConnectRedis(redisURL string, sentinelAddrs []string, masterName string) (*redis.Client, error) {
	var (
		client  *redis.Client
		timeout = 5 * time.Second
		mode    string
	)

	switch {
	case len(sentinelAddrs) > 0 && masterName != "":
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    masterName,
			SentinelAddrs: sentinelAddrs,
			PoolSize:      redisPoolSize,
			MinIdleConns:  redisMinIdleConns,
			MaxRetries:    redisMaxRetries,
			DialTimeout:   5 * time.Second,
			ReadTimeout:   3 * time.Second,
			WriteTimeout:  3 * time.Second,
		})
		// Sentinel сначала ищет мастера
		timeout = 10 * time.Second
		mode = "sentinel"
	case redisURL != "":
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		opt.PoolSize = redisPoolSize
		opt.MinIdleConns = redisMinIdleConns
		opt.MaxRetries = redisMaxRetries
		client = redis.NewClient(opt)
		mode = "direct"
	default:
		return nil, fmt.Errorf("REDIS_URL is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s ping: %w", mode, err)
	}

	log.Info().
		Str("mode", mode).
		Str("master", masterName).
		Strs("sentinels", sentinelAddrs).
		Msg("✅ Redis подключен")
	return client, nil
}

// CloseRedis закрывает подключение к Redis (nil допустим)
func CloseRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
