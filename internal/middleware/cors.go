package middleware

import (
	"strings"

	"greencoin-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CORSConfig lists allowed origins. AllowLocalhost admits http://localhost:* and 127.0.0.1 for development.
type CORSConfig struct {
	AllowedOrigins []string
	AllowLocalhost bool
}

// CORS allows listed origins with credentials and answers their preflight requests.
func CORS(cfg CORSConfig) fiber.Handler {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")
		if origin == "" {
			return c.Next()
		}
		_, ok := allowed[strings.ToLower(origin)]
		if !ok && cfg.AllowLocalhost {
			ok = strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")
		}
		if !ok {
			return response.Error(c, "Not allowed by CORS", fiber.StatusForbidden, nil)
		}
		c.Set("Access-Control-Allow-Origin", origin)
		c.Set("Access-Control-Allow-Credentials", "true")
		c.Set("Access-Control-Allow-Headers", "Content-Type, Idempotency-Key, X-Trace-Id")
		c.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}
