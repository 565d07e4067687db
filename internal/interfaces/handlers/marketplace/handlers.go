package marketplace

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

type listRequest struct {
	CreditID string  `json:"creditId"`
	Price    float64 `json:"price"`
	Amount   int64   `json:"amount"`
}

type buyRequest struct {
	ListingID string `json:"listingId"`
}

// List POST /api/v1/marketplace/list
func (h *Handlers) List(c *fiber.Ctx) error {
	producerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req listRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	creditID, err := uuid.Parse(strings.TrimSpace(req.CreditID))
	if err != nil {
		return response.Error(c, "creditId must be a valid UUID", fiber.StatusBadRequest, nil)
	}
	listing, err := h.Service.List(c.UserContext(), producerID, creditID, req.Price, req.Amount)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Credit listed", listing, nil)
}

// Buy POST /api/v1/marketplace/buy
func (h *Handlers) Buy(c *fiber.Ctx) error {
	buyerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req buyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	listingID, err := uuid.Parse(strings.TrimSpace(req.ListingID))
	if err != nil {
		return response.Error(c, "listingId must be a valid UUID", fiber.StatusBadRequest, nil)
	}
	result, err := h.Service.Purchase(c.UserContext(), buyerID, listingID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Purchase settled", result, nil)
}

// Confirm PUT /api/v1/marketplace/confirm/:txId
func (h *Handlers) Confirm(c *fiber.Ctx) error {
	buyerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	entry, err := h.Service.ConfirmSettlement(c.UserContext(), buyerID, c.Params("txId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Settlement confirmed", entry, nil)
}

// Listings GET /api/v1/marketplace/listings?limit=
func (h *Handlers) Listings(c *fiber.Ctx) error {
	listings, err := h.Service.ActiveListings(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Listings fetched", listings, fiber.Map{"count": len(listings)})
}
