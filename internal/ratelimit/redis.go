package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-rooms/backend/pkg/clock"
)

const keyPrefix = "ratelimit:"

// slidingWindow prunes, counts and records in one atomic step.
// KEYS[1] window key; ARGV: now (ms), window (ms), max, member.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= max then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// Redis is a sliding-window limiter shared by every server instance using the
// same Redis. When Redis is unreachable it fails open and logs a warning.
type Redis struct {
	client *redis.Client
	name   string
	max    int
	window time.Duration
	clock  clock.Clock
	logger *zap.Logger
}

// NewRedis creates a Redis-backed limiter. name namespaces its keys.
func NewRedis(client *redis.Client, name string, p Policy, clk clock.Clock, logger *zap.Logger) (*Redis, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, name: name, max: p.Max, window: p.Window, clock: clk, logger: logger}, nil
}

func (r *Redis) key(key string) string {
	return keyPrefix + r.name + ":" + key
}

// Allow admits key if its window has capacity.
func (r *Redis) Allow(ctx context.Context, key string) bool {
	now := r.clock.Now().UnixMilli()
	res, err := slidingWindow.Run(ctx, r.client, []string{r.key(key)},
		now, r.window.Milliseconds(), r.max, fmt.Sprintf("%d-%s", now, uuid.NewString())).Int()
	if err != nil {
		r.logger.Warn("rate limiter unavailable, admitting", zap.String("limiter", r.name), zap.String("key", key), zap.Error(err))
		return true
	}
	return res == 1
}

// Reset clears recorded admissions for key.
func (r *Redis) Reset(ctx context.Context, key string) {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.logger.Warn("rate limiter reset failed", zap.String("limiter", r.name), zap.String("key", key), zap.Error(err))
	}
}

// ResetAll clears every key in this limiter's namespace.
func (r *Redis) ResetAll(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, keyPrefix+r.name+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("rate limiter scan failed", zap.String("limiter", r.name), zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.Warn("rate limiter reset all failed", zap.String("limiter", r.name), zap.Error(err))
	}
}
