package leaderboard

import (
	boardsvc "greencoin-backend/internal/application/leaderboard"
	"greencoin-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *boardsvc.Service
}

// Producers GET /api/v1/leaderboard/producers
func (h *Handlers) Producers(c *fiber.Ctx) error {
	ranks, err := h.Service.Producers(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Producer leaderboard", ranks, nil)
}

// Buyers GET /api/v1/leaderboard/buyers
func (h *Handlers) Buyers(c *fiber.Ctx) error {
	ranks, err := h.Service.Buyers(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Buyer leaderboard", ranks, nil)
}
