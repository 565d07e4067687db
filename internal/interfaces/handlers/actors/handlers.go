package actors

import (
	actorsvc "greencoin-backend/internal/application/actors"
	"greencoin-backend/internal/application/policies"
	"greencoin-backend/internal/middleware"
	"greencoin-backend/internal/pkg/constants"
	"greencoin-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Handlers expose regulator actor administration. Routes are guarded by the ManageActors permission.
type Handlers struct {
	Service *actorsvc.Service
	Rdb     *redis.Client
}

type blacklistRequest struct {
	Blacklisted bool `json:"blacklisted"`
}

// List GET /api/v1/actors?role=
func (h *Handlers) List(c *fiber.Ctx) error {
	role := c.Query("role")
	if role != "" && !constants.IsValidRole(role) {
		return response.Error(c, "Unknown role", fiber.StatusBadRequest, nil)
	}
	list, err := h.Service.List(c.UserContext(), role)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Actors fetched", list, fiber.Map{"count": len(list)})
}

// SetBlacklisted PUT /api/v1/actors/:id/blacklist
func (h *Handlers) SetBlacklisted(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid actor id", fiber.StatusBadRequest, nil)
	}
	var req blacklistRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	regulatorID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}
	if err := policies.ValidateBlacklist(h.Service.DB.WithContext(c.UserContext()), policies.BlacklistParams{
		ActorID: regulatorID, TargetID: id, Blacklisted: req.Blacklisted,
	}); err != nil {
		return response.FromError(c, err)
	}
	actor, err := h.Service.SetBlacklisted(c.UserContext(), id, req.Blacklisted)
	if err != nil {
		return response.FromError(c, err)
	}
	revoked := 0
	if req.Blacklisted {
		revoked = policies.DestroyActorSessions(c.UserContext(), h.Rdb, id.String())
	}
	return response.Success(c, "Actor updated", actor, fiber.Map{"sessions_revoked": revoked})
}
