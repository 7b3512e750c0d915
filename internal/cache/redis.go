// Package cache holds the Redis-backed coordination used by the fan-out
// service: cascade leases and one-shot markers.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/metrics"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RedisClient wraps the redis.Client with connection pooling
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to addr and pings it
func NewRedisClient(addr, password string) (*RedisClient, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.ErrorWithFields("Failed to connect to Redis", err)
		_ = client.Close()
		return nil, err
	}

	logger.Log.Info("Redis client connected", zap.String("address", addr))
	return &RedisClient{client: client}, nil
}

// NewFromClient wraps an existing client
func NewFromClient(c *redis.Client) *RedisClient {
	return &RedisClient{client: c}
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	if rc == nil || rc.client == nil {
		return nil
	}
	return rc.client.Close()
}

// Ping tests the Redis connection
func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a held lock. Release it when the guarded work is done.
type Lease struct {
	rc    *RedisClient
	key   string
	token string
}

// Acquire takes the lock named key for ttl. It returns nil without error
// when someone else holds it.
func (rc *RedisClient) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	ok, err := rc.client.SetNX(ctx, key, token, ttl).Result()
	metrics.RecordRedisOperation("lease_acquire", err)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &Lease{rc: rc, key: key, token: token}, nil
}

// Release gives the lock up. Releasing an expired or stolen lease is a
// no-op.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	err := releaseScript.Run(ctx, l.rc.client, []string{l.key}, l.token).Err()
	if errors.Is(err, redis.Nil) {
		err = nil
	}
	metrics.RecordRedisOperation("lease_release", err)
	return err
}

// Key returns the lock name
func (l *Lease) Key() string {
	return l.key
}

// MarkOnce records key for ttl and reports whether this call was the first
// to do so.
func (rc *RedisClient) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := rc.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	metrics.RecordRedisOperation("mark_once", err)
	return ok, err
}

// Forget removes a marker set by MarkOnce
func (rc *RedisClient) Forget(ctx context.Context, key string) error {
	err := rc.client.Del(ctx, key).Err()
	metrics.RecordRedisOperation("forget", err)
	return err
}

// PutJSON stores v encoded as JSON under key for ttl
func (rc *RedisClient) PutJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	err = rc.client.Set(ctx, key, data, ttl).Err()
	metrics.RecordRedisOperation("put_json", err)
	return err
}

// GetJSON decodes the JSON stored under key into out. It reports false when
// the key does not exist.
func (rc *RedisClient) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	data, err := rc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordRedisOperation("get_json", nil)
		return false, nil
	}
	metrics.RecordRedisOperation("get_json", err)
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, out)
}
