package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"social-go/internal/config"
	"social-go/internal/ratelimit"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScripter 以单把锁模拟 Redis 执行 Lua 脚本的原子性：
// 清理、计数、条件写入作为一个不可分割的单元执行，和服务端语义一致。
type fakeScripter struct {
	mu      sync.Mutex
	entries map[string][]int64
}

func newFakeScripter() *fakeScripter {
	return &fakeScripter{entries: make(map[string][]int64)}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		panic(fmt.Sprintf("unexpected script arg type %T", v))
	}
}

func (f *fakeScripter) run(keys []string, args []interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := keys[0]
	windowStart := toInt64(args[0])
	limit := toInt64(args[1])
	score := toInt64(args[2])

	var kept []int64
	for _, s := range f.entries[key] {
		if s > windowStart {
			kept = append(kept, s)
		}
	}
	if int64(len(kept)) >= limit {
		f.entries[key] = kept
		return redis.NewCmdResult(int64(0), nil)
	}
	f.entries[key] = append(kept, score)
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeScripter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.run(keys, args)
}

func (f *fakeScripter) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.run(keys, args)
}

func (f *fakeScripter) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.run(keys, args)
}

func (f *fakeScripter) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.run(keys, args)
}

func (f *fakeScripter) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (f *fakeScripter) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func newTestLimiter(scripter redis.Scripter, limit int, window time.Duration) ratelimit.Limiter {
	return &redisLimiter{
		client: scripter,
		cfg:    config.RateLimitConfig{CreateLimit: limit, CreateWindow: window},
	}
}

func TestCheckAndConsume_SequentialLimit(t *testing.T) {
	limiter := newTestLimiter(newFakeScripter(), 3, time.Minute)

	for i := 0; i < 3; i++ {
		allowed, err := limiter.CheckAndConsume(context.Background(), 1, ratelimit.ActionCreateFriendRequest)
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d should be allowed", i+1)
	}

	allowed, err := limiter.CheckAndConsume(context.Background(), 1, ratelimit.ActionCreateFriendRequest)
	require.NoError(t, err)
	assert.False(t, allowed, "fourth attempt within the window must be denied")
}

func TestCheckAndConsume_ConcurrentCallsNeverExceedLimit(t *testing.T) {
	const limit = 3
	const attempts = 10
	limiter := newTestLimiter(newFakeScripter(), limit, time.Minute)

	// 并发调用不能都在写入前读到同一个计数：检查与消耗是一个原子单元，
	// 无论交错如何，放行数恰好等于上限。
	var wg sync.WaitGroup
	results := make([]bool, attempts)
	errs := make([]error, attempts)
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = limiter.CheckAndConsume(context.Background(), 1, ratelimit.ActionCreateFriendRequest)
		}(i)
	}
	wg.Wait()

	allowedCount := 0
	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, ok := range results {
		if ok {
			allowedCount++
		}
	}
	assert.Equal(t, limit, allowedCount)
}

func TestCheckAndConsume_WindowSlides(t *testing.T) {
	limiter := newTestLimiter(newFakeScripter(), 2, 20*time.Millisecond)

	for i := 0; i < 2; i++ {
		allowed, err := limiter.CheckAndConsume(context.Background(), 1, ratelimit.ActionCreateFriendRequest)
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, err := limiter.CheckAndConsume(context.Background(), 1, ratelimit.ActionCreateFriendRequest)
	require.NoError(t, err)
	require.False(t, allowed)

	// 窗口滑过之后旧条目被清理，配额恢复
	time.Sleep(30 * time.Millisecond)
	allowed, err = limiter.CheckAndConsume(context.Background(), 1, ratelimit.ActionCreateFriendRequest)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckAndConsume_PerUserIsolation(t *testing.T) {
	limiter := newTestLimiter(newFakeScripter(), 1, time.Minute)

	allowed, err := limiter.CheckAndConsume(context.Background(), 1, ratelimit.ActionCreateFriendRequest)
	require.NoError(t, err)
	require.True(t, allowed)

	// 用户 1 的配额耗尽不影响用户 2
	allowed, err = limiter.CheckAndConsume(context.Background(), 2, ratelimit.ActionCreateFriendRequest)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.CheckAndConsume(context.Background(), 1, ratelimit.ActionCreateFriendRequest)
	require.NoError(t, err)
	assert.False(t, allowed)
}
