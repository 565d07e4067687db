package settlement

import (
	"strings"

	settlesvc "greencoin-backend/internal/application/settlement"
	"greencoin-backend/internal/middleware"
	"greencoin-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// IdempotencyHeader lets a producer retry a confirmation without settling twice.
const IdempotencyHeader = "Idempotency-Key"

type Handlers struct {
	Service *settlesvc.Service
}

type fundRequest struct {
	BuyerID string  `json:"buyerId"`
	Amount  float64 `json:"amount"`
}

// Create POST /api/v1/sell-requests
func (h *Handlers) Create(c *fiber.Ctx) error {
	producerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var in settlesvc.CreateSellRequestInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	req, err := h.Service.CreateSellRequest(c.UserContext(), producerID, in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Sell request created", req, nil)
}

// Pending GET /api/v1/sell-requests/pending?limit=
func (h *Handlers) Pending(c *fiber.Ctx) error {
	reqs, err := h.Service.PendingRequests(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Pending sell requests", reqs, fiber.Map{"count": len(reqs)})
}

// Assign POST /api/v1/sell-requests/:id/assign
func (h *Handlers) Assign(c *fiber.Ctx) error {
	buyerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	requestID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid sell request id", fiber.StatusBadRequest, nil)
	}
	req, err := h.Service.AssignBuyer(c.UserContext(), buyerID, requestID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Buyer assigned", req, nil)
}

// Confirm POST /api/v1/sell-requests/:id/confirm
func (h *Handlers) Confirm(c *fiber.Ctx) error {
	producerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	requestID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid sell request id", fiber.StatusBadRequest, nil)
	}
	result, err := h.Service.ConfirmBuy(c.UserContext(), producerID, requestID, strings.TrimSpace(c.Get(IdempotencyHeader)))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Sale confirmed", result, nil)
}

// History GET /api/v1/producer/history
func (h *Handlers) History(c *fiber.Ctx) error {
	producerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	history, err := h.Service.ProducerHistory(c.UserContext(), producerID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Producer history", history, nil)
}

// Invoice GET /api/v1/invoices/:id
func (h *Handlers) Invoice(c *fiber.Ctx) error {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	invoiceID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid invoice id", fiber.StatusBadRequest, nil)
	}
	inv, err := h.Service.GetInvoice(c.UserContext(), actorID, invoiceID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Invoice fetched", inv, nil)
}

// FundWallet POST /api/v1/wallets/fund
func (h *Handlers) FundWallet(c *fiber.Ctx) error {
	regulatorID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req fundRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	buyerID, err := uuid.Parse(strings.TrimSpace(req.BuyerID))
	if err != nil {
		return response.Error(c, "buyerId must be a valid UUID", fiber.StatusBadRequest, nil)
	}
	buyer, err := h.Service.FundWallet(c.UserContext(), regulatorID, buyerID, req.Amount)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Wallet funded", fiber.Map{"buyer_id": buyer.ActorID, "wallet_balance": buyer.WalletBalance}, nil)
}
