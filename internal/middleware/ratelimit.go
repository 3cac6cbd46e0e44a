package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ezac101/chainmail/internal/storage"
)

// RateLimiter 基于存储后端的请求限流中间件
//
// 单机部署时计数在内存中，Redis 可用时计数跨节点共享。
type RateLimiter struct {
	limits storage.RateLimitRepository
	log    *zap.Logger
}

// NewRateLimiter 创建限流中间件
func NewRateLimiter(limits storage.RateLimitRepository, log *zap.Logger) *RateLimiter {
	return &RateLimiter{limits: limits, log: log}
}

// ByIP 按客户端 IP 限流
//
// 参数:
//   - scope: 限流范围标识，不同接口组用不同 scope
//   - max: 窗口内允许的最大请求数
//   - window: 计数窗口
func (rl *RateLimiter) ByIP(scope string, max int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:%s:%s", scope, c.ClientIP())

		count, err := rl.limits.IncrementRateLimit(key, window)
		if err != nil {
			// 限流计数失败不应阻断业务请求
			rl.log.Warn("限流计数失败", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if count > max {
			c.Header("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
