package utils

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient обертка над Redis клиентом для удобной работы
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient создает новый Redis клиент
func NewRedisClient(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// encode приводит значение к строке: строки как есть, остальное в JSON
func encode(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		jsonData, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		return string(jsonData), nil
	}
}

// releaseScript удаляет ключ, только если в нем наш токен
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Lock - захваченная блокировка; Release снимает ее, если она еще наша
type Lock struct {
	r     *RedisClient
	key   string
	token string
}

// TryLock пытается захватить блокировку key на ttl. ok=false, если ее держит кто-то другой
func (r *RedisClient) TryLock(ctx context.Context, key, token string, ttl time.Duration) (*Lock, bool, error) {
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return &Lock{r: r, key: key, token: token}, true, nil
}

// lockPollInterval - как часто AcquireLock повторяет попытку захвата
const lockPollInterval = 50 * time.Millisecond

// AcquireLock ждет блокировку key не дольше wait. ok=false, если за это время ее не отпустили
func (r *RedisClient) AcquireLock(ctx context.Context, key, token string, ttl, wait time.Duration) (*Lock, bool, error) {
	deadline := time.Now().Add(wait)
	for {
		lock, ok, err := r.TryLock(ctx, key, token, ttl)
		if err != nil || ok {
			return lock, ok, err
		}
		if !time.Now().Before(deadline) {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// Release снимает блокировку
func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.r.client, []string{l.key}, l.token).Err()
}

// Publish публикует сообщение в канал (Pub/Sub)
func (r *RedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := encode(message)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe подписывается на канал и возвращает канал сообщений
func (r *RedisClient) Subscribe(ctx context.Context, channel string) (<-chan *redis.Message, func() error) {
	pubsub := r.client.Subscribe(ctx, channel)
	ch := pubsub.Channel()

	// Функция для закрытия подписки
	closeFn := func() error {
		return pubsub.Close()
	}

	return ch, closeFn
}

// Ping проверяет соединение (health check)
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
