package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c *fiber.Ctx) string

// ByViewerOrIP buckets authenticated requests per viewer and the rest per
// client IP.
func ByViewerOrIP(c *fiber.Ctx) string {
	if id, ok := c.Locals(ViewerLocal).(string); ok && id != "" {
		return "viewer:" + id
	}
	return "ip:" + c.IP()
}

// RateLimit allows maxPerMin requests per bucket per minute using Redis
// INCR/EXPIRE. Without Redis, or when Redis fails, requests pass.
func RateLimit(cache *redis.Client, prefix string, maxPerMin int, key KeyFunc, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	if key == nil {
		key = ByViewerOrIP
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		bucket := "rl:" + prefix + ":" + key(c)
		cnt, err := cache.Incr(c.UserContext(), bucket).Result()
		if err != nil {
			if logger != nil {
				logger.Warn("rate limit unavailable", slog.String("bucket", prefix), slog.Any("error", err))
			}
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), bucket, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			c.Set(fiber.HeaderRetryAfter, "60")
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}

// LoginKey buckets login attempts by the submitted external id, falling back
// to the client IP.
func LoginKey(c *fiber.Ctx) string {
	var req struct {
		ExternalID string `json:"external_id"`
	}
	_ = c.BodyParser(&req)
	if req.ExternalID != "" {
		return "viewer:" + req.ExternalID
	}
	return "ip:" + c.IP()
}
