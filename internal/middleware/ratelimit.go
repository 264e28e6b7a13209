package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"WholeWellness/config"
	"WholeWellness/pkg/errors"
	"WholeWellness/pkg/logger"
	"WholeWellness/pkg/response"
	"WholeWellness/storage/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 限流键前缀
	KeyPrefix string
	// 时间窗口
	Window time.Duration
	// 超过限制后禁止访问的时间，0 表示不封禁
	BlockDuration time.Duration
	// 时间窗口内最大请求数
	MaxRequests int
}

// IntakeWriteRateLimitConfig 问卷写操作限流，按 IP 计数
func IntakeWriteRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		KeyPrefix:   "rate:intake:write",
		Window:      time.Duration(config.Cfg.RateLimitWindow) * time.Second,
		MaxRequests: config.Cfg.RateLimitMax,
	}
}

// IntakeStartRateLimitConfig 新建问卷限流，比写操作严格并带封禁
func IntakeStartRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		KeyPrefix:     "rate:intake:start",
		Window:        time.Minute,
		MaxRequests:   10,
		BlockDuration: 10 * time.Minute,
	}
}

// RateLimiter 基于 ZSET 的滑动窗口限流器
type RateLimiter struct {
	now    func() time.Time
	config RateLimitConfig
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{config: cfg, now: time.Now}
}

func (rl *RateLimiter) key(identifier string) string {
	return redis.Key(rl.config.KeyPrefix, identifier)
}

func (rl *RateLimiter) blockKey(identifier string) string {
	return redis.Key(rl.config.KeyPrefix, "block", identifier)
}

// Allow 记录一次请求并返回窗口内的请求数
func (rl *RateLimiter) Allow(ctx context.Context, identifier string) (bool, int, error) {
	key := rl.key(identifier)
	now := rl.now()
	windowStart := now.Add(-rl.config.Window)

	pipe := redis.Client().Pipeline()
	// 先移除窗口外的记录
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redislib.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	zcardCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, rl.config.Window+10*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(zcardCmd.Val())
	return count <= rl.config.MaxRequests, count, nil
}

func (rl *RateLimiter) Block(ctx context.Context, identifier string) error {
	if rl.config.BlockDuration <= 0 {
		return nil
	}
	return redis.Client().Set(ctx, rl.blockKey(identifier), "1", rl.config.BlockDuration).Err()
}

func (rl *RateLimiter) IsBlocked(ctx context.Context, identifier string) (bool, error) {
	if rl.config.BlockDuration <= 0 {
		return false, nil
	}
	n, err := redis.Client().Exists(ctx, rl.blockKey(identifier)).Result()
	return n > 0, err
}

// RateLimitMiddleware 创建限流中间件。Redis 不可用时放行，不影响问卷填写
func RateLimitMiddleware(cfg RateLimitConfig) app.HandlerFunc {
	if !config.Cfg.RateLimitEnabled || cfg.MaxRequests <= 0 {
		return func(ctx context.Context, c *app.RequestContext) { c.Next(ctx) }
	}
	limiter := NewRateLimiter(cfg)

	return func(ctx context.Context, c *app.RequestContext) {
		identifier := "ip:" + c.ClientIP()

		blocked, err := limiter.IsBlocked(ctx, identifier)
		if err != nil {
			logger.Logger.Warn("Failed to check block status", zap.String("key_prefix", cfg.KeyPrefix), zap.Error(err))
			c.Next(ctx)
			return
		}
		if blocked {
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		allowed, count, err := limiter.Allow(ctx, identifier)
		if err != nil {
			logger.Logger.Warn("Failed to check rate limit", zap.String("key_prefix", cfg.KeyPrefix), zap.Error(err))
			c.Next(ctx)
			return
		}

		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(max(cfg.MaxRequests-count, 0)))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(limiter.now().Add(cfg.Window).Unix(), 10))

		if !allowed {
			if err := limiter.Block(ctx, identifier); err != nil {
				logger.Logger.Error("Failed to block client", zap.String("identifier", identifier), zap.Error(err))
			}
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}
