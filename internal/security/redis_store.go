package security

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/antoine78910/ecomefficiency-sub002/internal/constants"
)

// RedisCounterStore keeps windowed counters in Redis so rate limits hold
// across replicas of the proxy.
type RedisCounterStore struct {
	client *redis.Client
}

func NewRedisCounterStore(host, port, username, password string) (*RedisCounterStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Username: username,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), constants.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCounterStore{client: client}, nil
}

func (st *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	redisKey := constants.RedisKeyPrefix + key

	count, err := st.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		// First hit in the window starts the clock.
		st.client.Expire(ctx, redisKey, window)
	}
	return count, nil
}

func (st *RedisCounterStore) Close() error {
	return st.client.Close()
}
