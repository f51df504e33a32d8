package middleware

import "todo_service/internal/config"

// DefaultRateLimiterConfig allows bursts of 20 and 10 requests per second sustained.
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		Capacity:   20,
		RefillRate: 10.0,
	}
}

// StrictRateLimiter is for credential endpoints (register, token).
// Burst: 5 requests, Sustained: 1 request per 2 seconds
func StrictRateLimiter() *RateLimiterConfig {
	return &RateLimiterConfig{
		Capacity:   5,
		RefillRate: 0.5,
	}
}

// RateLimiterFromConfig builds the per-user limiter from configuration,
// falling back to the defaults for unusable values.
func RateLimiterFromConfig(cfg config.RateLimitConfig) *RateLimiterConfig {
	if cfg.Capacity <= 0 || cfg.RefillRate <= 0 {
		return DefaultRateLimiterConfig()
	}
	return &RateLimiterConfig{
		Capacity:   cfg.Capacity,
		RefillRate: cfg.RefillRate,
	}
}
