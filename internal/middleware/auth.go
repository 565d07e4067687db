package middleware

import (
	"greencoin-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const userLocal = "user"

// RequireAuth ensures an actor is in the session. Returns 401 with standard error format if not.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := ActorID(c); !ok {
			return response.Unauthorized(c, "Unauthorized")
		}
		return c.Next()
	}
}

// RequireRole allows only actors whose session role is one of roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := ActorID(c); !ok {
			return response.Unauthorized(c, "Unauthorized")
		}
		role := Role(c)
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		return response.Error(c, "User is Forbidden from performing this action", fiber.StatusForbidden, nil)
	}
}

// GetUser returns the session user from Locals (nil if not logged in).
func GetUser(c *fiber.Ctx) map[string]interface{} {
	m, _ := c.Locals(userLocal).(map[string]interface{})
	return m
}

// ActorID returns the session actor id.
func ActorID(c *fiber.Ctx) (uuid.UUID, bool) {
	s, _ := GetUser(c)["actor_id"].(string)
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Role returns the session actor role, "" when not logged in.
func Role(c *fiber.Ctx) string {
	r, _ := GetUser(c)["role"].(string)
	return r
}
