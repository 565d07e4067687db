package auth

import (
	"context"
	"errors"

	"greencoin-backend/internal/application/actors"
	"greencoin-backend/internal/application/policies"
	"greencoin-backend/internal/middleware"
	"greencoin-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Handlers holds dependencies for auth endpoints.
type Handlers struct {
	Actors *actors.Service
	Rdb    *redis.Client
	Config middleware.SessionConfig
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register POST /api/v1/auth/register
func (h *Handlers) Register(c *fiber.Ctx) error {
	var req actors.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	actor, err := h.Actors.Register(c.UserContext(), req)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Actor registered", fiber.Map{"actor": actor}, nil)
}

// Login POST /api/v1/auth/login: authenticate, start a fresh session, set the signed cookie.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Username and password are required", fiber.StatusBadRequest, nil)
	}
	actor, err := h.Actors.Authenticate(c.UserContext(), req.Username, req.Password)
	if errors.Is(err, actors.ErrInvalidCredentials) {
		return response.Error(c, actors.ErrInvalidCredentials.Message, fiber.StatusUnauthorized, nil)
	}
	if err != nil {
		return response.FromError(c, err)
	}

	if old := middleware.GetSessionID(c); old != "" {
		_ = h.Rdb.Del(context.Background(), middleware.SessionRedisPrefix+old).Err()
	}
	sessionID := middleware.RegenerateSessionID(c)
	middleware.SetSessionUser(c, middleware.SessionUser{
		ActorID: actor.ActorID.String(),
		Name:    actor.Name,
		Role:    actor.Role,
	})
	c.Cookie(middleware.SessionCookie(h.Config, sessionID))
	if err := policies.TrackSession(context.Background(), h.Rdb, actor.ActorID.String(), sessionID); err != nil {
		log.Warn().Err(err).Str("actor_id", actor.ActorID.String()).Msg("track session failed")
	}

	log.Info().Str("actor_id", actor.ActorID.String()).Str("role", actor.Role).Msg("login")
	return response.Success(c, "Login successful", fiber.Map{"actor": actor}, nil)
}

// Me GET /api/v1/auth/me
func (h *Handlers) Me(c *fiber.Ctx) error {
	id, ok := middleware.ActorID(c)
	if !ok {
		return response.Error(c, "Not authenticated", fiber.StatusUnauthorized, nil)
	}
	actor, err := h.Actors.Get(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Authenticated", fiber.Map{"actor": actor}, nil)
}

// Logout DELETE /api/v1/auth/logout: drop the Redis session and expire the cookie.
func (h *Handlers) Logout(c *fiber.Ctx) error {
	if sessionID := middleware.GetSessionID(c); sessionID != "" {
		_ = h.Rdb.Del(context.Background(), middleware.SessionRedisPrefix+sessionID).Err()
		if id, ok := middleware.ActorID(c); ok {
			policies.ForgetSession(context.Background(), h.Rdb, id.String(), sessionID)
		}
	}
	middleware.DestroySession(c)
	c.Cookie(middleware.SessionCookie(h.Config, ""))
	return response.Success(c, "Logged out", fiber.Map{}, nil)
}
