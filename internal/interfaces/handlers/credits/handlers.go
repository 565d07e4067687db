package credits

import (
	"strings"

	creditsvc "greencoin-backend/internal/application/credits"
	"greencoin-backend/internal/middleware"
	"greencoin-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *creditsvc.Service
}

type retireRequest struct {
	CreditID  string `json:"creditId"`
	BuyerName string `json:"buyerName"`
}

type revokeRequest struct {
	CreditID string `json:"creditId"`
	Reason   string `json:"reason"`
}

type sensorRequest struct {
	PartID     string `json:"partId"`
	ProducerID string `json:"producerId"`
}

// Mint POST /api/v1/credits/mint
func (h *Handlers) Mint(c *fiber.Ctx) error {
	producerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var in creditsvc.MintInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	credit, err := h.Service.Mint(c.UserContext(), producerID, in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Credit minted", credit, nil)
}

// Retire POST /api/v1/credits/retire
func (h *Handlers) Retire(c *fiber.Ctx) error {
	buyerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req retireRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	creditID, err := uuid.Parse(strings.TrimSpace(req.CreditID))
	if err != nil {
		return response.Error(c, "creditId must be a valid UUID", fiber.StatusBadRequest, nil)
	}
	credit, err := h.Service.Retire(c.UserContext(), buyerID, creditID, req.BuyerName)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Credit retired", credit, nil)
}

// Revoke POST /api/v1/credits/revoke
func (h *Handlers) Revoke(c *fiber.Ctx) error {
	regulatorID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req revokeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	creditID, err := uuid.Parse(strings.TrimSpace(req.CreditID))
	if err != nil {
		return response.Error(c, "creditId must be a valid UUID", fiber.StatusBadRequest, nil)
	}
	credit, err := h.Service.Revoke(c.UserContext(), regulatorID, creditID, req.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Credit revoked", credit, nil)
}

// Get GET /api/v1/credits/:id with its lifecycle events.
func (h *Handlers) Get(c *fiber.Ctx) error {
	creditID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid credit id", fiber.StatusBadRequest, nil)
	}
	credit, err := h.Service.Get(c.UserContext(), creditID)
	if err != nil {
		return response.FromError(c, err)
	}
	events, err := h.Service.Events(c.UserContext(), creditID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Credit fetched", fiber.Map{"credit": credit, "events": events}, nil)
}

// Owned GET /api/v1/credits/owned
func (h *Handlers) Owned(c *fiber.Ctx) error {
	ownerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	credits, err := h.Service.Owned(c.UserContext(), ownerID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Credits fetched", credits, fiber.Map{"count": len(credits)})
}

// RegisterSensor POST /api/v1/sensors
func (h *Handlers) RegisterSensor(c *fiber.Ctx) error {
	approverID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req sensorRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	producerID, err := uuid.Parse(strings.TrimSpace(req.ProducerID))
	if err != nil {
		return response.Error(c, "producerId must be a valid UUID", fiber.StatusBadRequest, nil)
	}
	sensor, err := h.Service.RegisterSensor(c.UserContext(), approverID, req.PartID, producerID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Sensor approved", sensor, nil)
}
