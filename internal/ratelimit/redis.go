package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Redis counts hits in a key per window: INCR plus an expiry on first hit.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedis(client *redis.Client, prefix string, limit int, window time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now()
	slot := now.UnixNano() / int64(r.window)
	windowEnd := time.Unix(0, (slot+1)*int64(r.window))
	k := r.prefix + key + ":" + strconv.FormatInt(slot, 10)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.ExpireNX(ctx, k, r.window)
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	count := int(incr.Val())
	if count > r.limit {
		return Decision{RetryAfter: windowEnd.Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: r.limit - count}, nil
}
