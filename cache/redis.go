package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/stepforge/flowrt/core"
)

// Redis is a Store backed by Redis, used for the `global` cache policy so
// cached step results are visible across processes, not just within one.
type Redis struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	logger    core.Logger
}

// RedisOptions configures a Redis-backed global cache.
type RedisOptions struct {
	URL       string
	Namespace string        // key prefix, default "flowrt:cache"
	TTL       time.Duration // 0 = no expiry
	Logger    core.Logger
}

// NewRedis connects to Redis and verifies reachability with a ping.
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("cache: redis URL is required: %w", core.ErrCompile)
	}
	if opts.Namespace == "" {
		opts.Namespace = "flowrt:cache"
	}
	if opts.Logger == nil {
		opts.Logger = core.NoOpLogger{}
	}

	redisOpt, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis URL: %w", err)
	}
	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis unreachable: %w", err)
	}

	return &Redis{client: client, namespace: opts.Namespace, ttl: opts.TTL, logger: opts.Logger}, nil
}

func (r *Redis) key(k string) string {
	return r.namespace + ":" + k
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		r.logger.Warn("cache get failed", map[string]interface{}{"key": key, "error": err.Error()})
		return nil, false, err
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		r.logger.Warn("cache set failed", map[string]interface{}{"key": key, "error": err.Error()})
		return err
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
