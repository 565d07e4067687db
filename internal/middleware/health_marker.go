package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Redis keys for request statistics, read by the health service.
const (
	KeyReqTotal  = "health:greencoin:req_total"
	KeyReqErrors = "health:greencoin:req_errors"
	KeyResTime   = "health:greencoin:res_time_total"
	KeyResCount  = "health:greencoin:res_count"
	KeyStartTime = "health:greencoin:start_time"
	KeyLastReq   = "health:greencoin:last_request"
	KeyErrorLog  = "health:greencoin:error_log"
)

const errorLogSize = 50

// HealthMarker records request stats in Redis (skip /, /health*, /metrics, favicon).
// 5xx responses are also pushed to a capped error log.
func HealthMarker(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/" || strings.Contains(path, "/health") || path == "/metrics" || strings.HasPrefix(path, "/favicon") {
			return c.Next()
		}

		start := time.Now()
		lastReq := map[string]interface{}{
			"time":   time.Now(),
			"ip":     c.IP(),
			"path":   c.OriginalURL(),
			"method": c.Method(),
		}
		b, _ := json.Marshal(lastReq)
		ctx := context.Background()
		_, _ = rdb.Set(ctx, KeyLastReq, b, 0).Result()
		_, _ = rdb.Incr(ctx, KeyReqTotal).Result()

		err := c.Next()

		ms := time.Since(start).Milliseconds()
		_, _ = rdb.Incr(ctx, KeyResCount).Result()
		_, _ = rdb.IncrByFloat(ctx, KeyResTime, float64(ms)).Result()
		if status := c.Response().StatusCode(); status >= 500 || err != nil {
			_, _ = rdb.Incr(ctx, KeyReqErrors).Result()
			entry, _ := json.Marshal(map[string]interface{}{
				"time":     time.Now(),
				"path":     path,
				"method":   c.Method(),
				"status":   status,
				"trace_id": GetTraceID(c),
			})
			_, _ = rdb.LPush(ctx, KeyErrorLog, entry).Result()
			_, _ = rdb.LTrim(ctx, KeyErrorLog, 0, errorLogSize-1).Result()
		}
		return err
	}
}
