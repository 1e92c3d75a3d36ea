package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"libro-backend/internal/platform/apperr"
)

type KeyFunc func(c *gin.Context) string

type Options struct {
	Store      *Store
	KeyFn      KeyFunc
	RetryAfter time.Duration
}

// クライアントアドレス単位。gin側でX-Forwarded-For等は解決済み。
func defaultKeyFunc(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// Middleware はファサード/エンジンに届く前に過剰リクエストを弾く入場ゲート。
func Middleware(opts Options) gin.HandlerFunc {
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = defaultKeyFunc
	}

	return func(c *gin.Context) {
		key := opts.KeyFn(c)
		if !opts.Store.Get(key).Allow() {
			c.Header("Retry-After", strconv.Itoa(int(opts.RetryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				apperr.Body(apperr.CodeUnavailable, "rate limit exceeded"))
			return
		}
		c.Next()
	}
}
