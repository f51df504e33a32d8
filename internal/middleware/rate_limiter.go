package middleware

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"todo_service/internal/apperror"
	"todo_service/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

//go:embed rate_limiter.lua
var luaScript string

// Script.Run falls back from EVALSHA to EVAL, so the script survives a
// Redis restart without reloading.
var tokenBucket = redis.NewScript(luaScript)

const rateLimiterTimeout = 200 * time.Millisecond

// RateLimiterConfig holds rate limiter configuration
type RateLimiterConfig struct {
	Capacity   int     // Maximum number of tokens (max requests)
	RefillRate float64 // Tokens refilled per second
}

// KeyFunc picks the bucket for a request. ok=false means the request has
// no identity to limit on.
type KeyFunc func(c *gin.Context) (key string, ok bool)

// ByUser limits per authenticated user. It must run after AuthMiddleware.
func ByUser(c *gin.Context) (string, bool) {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return "", false
	}
	return UserRateLimiterKey(userID), true
}

// ByClientIP limits per remote address, for routes without a caller identity.
func ByClientIP(c *gin.Context) (string, bool) {
	return ClientRateLimiterKey(c.ClientIP()), true
}

// RateLimiterMiddleware implements a token bucket in Redis. A nil client
// disables limiting, and Redis failures let the request through.
func RateLimiterMiddleware(redisClient *redis.Client, config *RateLimiterConfig, keyFunc KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil {
			c.Next()
			return
		}

		key, ok := keyFunc(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperror.ErrorResponse{
				Error: "Unauthorized - user_id not found in context",
				Code:  "UNAUTHORIZED",
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), rateLimiterTimeout)
		defer cancel()

		allowed, err := tokenBucket.Run(ctx, redisClient, []string{key},
			config.Capacity,
			config.RefillRate,
			time.Now().UnixMilli(),
		).Int64()
		if err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		if allowed == 0 {
			retryAfter := int(math.Ceil(1.0 / config.RefillRate))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apperror.ErrorResponse{
				Error: fmt.Sprintf("Rate limit exceeded, retry in %d seconds", retryAfter),
				Code:  "RATE_LIMITED",
			})
			return
		}

		c.Next()
	}
}

func UserRateLimiterKey(userID string) string {
	return fmt.Sprintf("rate_limiter:user:%s", userID)
}

func ClientRateLimiterKey(ip string) string {
	return fmt.Sprintf("rate_limiter:ip:%s", ip)
}
