package redis

import (
	"context"
	"fmt"
	"time"

	"social-go/internal/config"
	"social-go/internal/ratelimit"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "rl:"

// checkAndConsumeScript 在 Redis 端一次性完成「清理过期条目 → 计数 →
// 条件写入」。检查与消耗之间没有客户端往返，两个并发调用不可能都读到
// 同一个计数后双双放行。
// KEYS[1] 窗口键；ARGV: 窗口起点分数、上限、本次分数、成员、窗口毫秒数。
var checkAndConsumeScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[2]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// redisLimiter 是 ratelimit.Limiter 接口的 Redis 实现。
// 每个 (action, userID) 维护一个按时间戳打分的 sorted set，实现滚动窗口。
type redisLimiter struct {
	client redis.Scripter
	cfg    config.RateLimitConfig
}

// NewRedisLimiter 创建一个新的基于 Redis 的限流器。
func NewRedisLimiter(client *redis.Client, cfg config.RateLimitConfig) ratelimit.Limiter {
	return &redisLimiter{client: client, cfg: cfg}
}

// CheckAndConsume 原子地检查并消耗一次配额。
func (r *redisLimiter) CheckAndConsume(ctx context.Context, userID uint, action string) (bool, error) {
	key := fmt.Sprintf("%s%s:%d", rateLimitKeyPrefix, action, userID)
	now := time.Now()
	windowStart := now.Add(-r.cfg.CreateWindow)

	// member 需要唯一，否则同一纳秒内的两次消耗会合并成一条
	member := uuid.NewString()

	allowed, err := checkAndConsumeScript.Run(ctx, r.client, []string{key},
		windowStart.UnixNano(),
		r.cfg.CreateLimit,
		now.UnixNano(),
		member,
		r.cfg.CreateWindow.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("限流检查失败 for user %d: %w", userID, err)
	}
	return allowed == 1, nil
}
