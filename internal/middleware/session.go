package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionConfig for the Redis-backed session cookie. Secret is the cookie signing key.
type SessionConfig struct {
	Secret       string
	IsProduction bool
}

const (
	SessionCookieName  = "greencoin.sid"
	SessionRedisPrefix = "session:"
	SessionMaxAge      = 24 * time.Hour
)

// SessionUser is the identity stored in the session under "user".
type SessionUser struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
}

// Session loads the session from Redis into Locals and saves it back after the handler ran.
func Session(cfg SessionConfig, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := parseSessionCookie(cfg.Secret, c.Cookies(SessionCookieName))

		var data map[string]interface{}
		if sessionID != "" {
			b, err := rdb.Get(c.UserContext(), SessionRedisPrefix+sessionID).Bytes()
			if err == nil {
				_ = json.Unmarshal(b, &data)
			}
		}
		if data == nil {
			data = make(map[string]interface{})
		}

		c.Locals("session_data", data)
		if u, ok := data["user"]; ok {
			c.Locals(userLocal, u)
		} else {
			c.Locals(userLocal, nil)
		}
		c.Locals("session_id", sessionID)

		if err := c.Next(); err != nil {
			return err
		}

		if sid, _ := c.Locals("session_id").(string); sid != "" {
			updated, _ := c.Locals("session_data").(map[string]interface{})
			if len(updated) > 0 {
				b, _ := json.Marshal(updated)
				rdb.Set(context.Background(), SessionRedisPrefix+sid, b, SessionMaxAge)
			}
		}
		return nil
	}
}

// GetSessionID returns the current session ID from context.
func GetSessionID(c *fiber.Ctx) string {
	sid, _ := c.Locals("session_id").(string)
	return sid
}

// SetSessionUser stores the actor in the session. Call RegenerateSessionID first on login.
func SetSessionUser(c *fiber.Ctx, user SessionUser) {
	data, _ := c.Locals("session_data").(map[string]interface{})
	if data == nil {
		data = make(map[string]interface{})
	}
	data["user"] = map[string]interface{}{
		"actor_id": user.ActorID,
		"name":     user.Name,
		"role":     user.Role,
	}
	c.Locals("session_data", data)
	c.Locals(userLocal, data["user"])
}

// RegenerateSessionID creates a new session ID in Locals; the handler sets the cookie.
func RegenerateSessionID(c *fiber.Ctx) string {
	newID := uuid.New().String()
	c.Locals("session_id", newID)
	return newID
}

// DestroySession clears the session in Locals; the caller clears the cookie and the Redis key.
func DestroySession(c *fiber.Ctx) {
	c.Locals("session_data", make(map[string]interface{}))
	c.Locals(userLocal, nil)
}

// SessionCookie returns the cookie carrying the session id, "s:<id>.<signature>".
// An empty id yields an expired cookie.
func SessionCookie(cfg SessionConfig, sessionID string) *fiber.Cookie {
	value := ""
	if sessionID != "" {
		value = "s:" + sessionID + "." + signSessionID(cfg.Secret, sessionID)
	}
	maxAge := int(SessionMaxAge.Seconds())
	if sessionID == "" {
		maxAge = -1
	}
	return &fiber.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HTTPOnly: true,
		Secure:   cfg.IsProduction,
		SameSite: "Lax",
	}
}

func signSessionID(secret, id string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// parseSessionCookie returns the session id of a well-signed cookie, "" otherwise.
func parseSessionCookie(secret, raw string) string {
	if !strings.HasPrefix(raw, "s:") {
		return ""
	}
	parts := strings.SplitN(raw[2:], ".", 2)
	if len(parts) != 2 || parts[0] == "" {
		return ""
	}
	if !hmac.Equal([]byte(parts[1]), []byte(signSessionID(secret, parts[0]))) {
		return ""
	}
	return parts[0]
}
