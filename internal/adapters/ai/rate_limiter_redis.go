package ai

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

// tokenBucket takes one token and returns {allowed, wait_ms}. wait_ms is the
// time until the next token when the bucket is empty. The server clock is
// used so replicas with skewed clocks share one bucket.
//
// KEYS[1] bucket, ARGV[1] tokens per second, ARGV[2] burst
var tokenBucket = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local t = redis.call('TIME')
local now = tonumber(t[1]) + tonumber(t[2]) / 1000000

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now

tokens = math.min(burst, tokens + math.max(0, now - ts) * rate)

local allowed = 0
local wait_ms = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	wait_ms = math.ceil((1 - tokens) / rate * 1000)
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(now))
redis.call('EXPIRE', KEYS[1], math.ceil(burst / rate) + 60)
return {allowed, wait_ms}
`)

// RedisRateLimiter shares one LLM token bucket per provider across API
// replicas. When Redis is unreachable it degrades to a process-local bucket
// with the same settings.
type RedisRateLimiter struct {
	client   *redis.Client
	provider ProviderName
	rate     float64 // tokens per second
	burst    int
	key      string
	local    *TokenBucketLimiter
	log      *logger.Logger
}

func NewRedisRateLimiter(client *redis.Client, provider ProviderName, reqPerMinute float64, burst int) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:   client,
		provider: provider,
		rate:     reqPerMinute / 60.0,
		burst:    defaultBurst(reqPerMinute, burst),
		key:      "erpinsight:llm:bucket:" + string(provider),
		local:    NewTokenBucketLimiter(provider, reqPerMinute, burst),
		log:      logger.Get().With("component", "llm_rate_limiter", "provider", provider),
	}
}

// Wait blocks until the shared bucket grants a token or ctx is done
func (l *RedisRateLimiter) Wait(ctx context.Context) error {
	for {
		allowed, wait, err := l.take(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return l.cancelled(ctx)
			}
			l.log.Warnw("shared rate limiter unavailable, using local bucket", "error", err)
			return l.local.Wait(ctx)
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return l.cancelled(ctx)
		case <-timer.C:
		}
	}
}

// Allow takes a token without blocking
func (l *RedisRateLimiter) Allow() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	allowed, _, err := l.take(ctx)
	if err != nil {
		return l.local.Allow()
	}
	return allowed
}

// Limit is in requests per minute
func (l *RedisRateLimiter) Limit() float64 {
	return l.rate * 60.0
}

func (l *RedisRateLimiter) take(ctx context.Context) (bool, time.Duration, error) {
	res, err := tokenBucket.Run(ctx, l.client, []string{l.key}, l.rate, l.burst).Int64Slice()
	if err != nil {
		return false, 0, errors.Wrap(err, "token bucket script")
	}
	if len(res) != 2 {
		return false, 0, errors.Wrapf(errors.ErrInternal, "token bucket returned %d values", len(res))
	}
	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}

func (l *RedisRateLimiter) cancelled(ctx context.Context) error {
	return &RateLimitError{
		Provider: l.provider,
		Limit:    l.Limit(),
		Err:      errors.Wrap(ctx.Err(), "rate limiter wait cancelled"),
	}
}

// Tokens reports the tokens left in the shared bucket as last written.
// A missing bucket is full.
func (l *RedisRateLimiter) Tokens(ctx context.Context) (float64, error) {
	v, err := l.client.HGet(ctx, l.key, "tokens").Result()
	if errors.Is(err, redis.Nil) {
		return float64(l.burst), nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read token bucket")
	}
	return strconv.ParseFloat(v, 64)
}

// Reset drops the shared bucket
func (l *RedisRateLimiter) Reset(ctx context.Context) error {
	return l.client.Del(ctx, l.key).Err()
}
