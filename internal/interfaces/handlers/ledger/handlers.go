package ledger

import (
	ledgersvc "greencoin-backend/internal/application/ledger"
	"greencoin-backend/internal/middleware"
	"greencoin-backend/internal/pkg/constants"
	"greencoin-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *ledgersvc.Service
}

// target resolves whose ledger is read: the caller, or ?actorId= for auditors and regulators.
// Errors are *fiber.Error so the app error handler renders them.
func target(c *fiber.Ctx) (uuid.UUID, error) {
	self, ok := middleware.ActorID(c)
	if !ok {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
	}
	raw := c.Query("actorId")
	if raw == "" {
		return self, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "actorId must be a valid UUID")
	}
	if id != self {
		if role := middleware.Role(c); role != constants.Auditor && role != constants.Regulator {
			return uuid.Nil, fiber.NewError(fiber.StatusForbidden, "User is Forbidden from performing this action")
		}
	}
	return id, nil
}

// Entries GET /api/v1/ledger/entries?limit=&actorId=
func (h *Handlers) Entries(c *fiber.Ctx) error {
	actorID, err := target(c)
	if err != nil {
		return err
	}
	entries, err := h.Service.Entries(c.UserContext(), actorID, c.QueryInt("limit", 0))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Ledger entries", entries, fiber.Map{"count": len(entries)})
}

// Summary GET /api/v1/ledger/summary
func (h *Handlers) Summary(c *fiber.Ctx) error {
	actorID, err := target(c)
	if err != nil {
		return err
	}
	sum, err := h.Service.Summary(c.UserContext(), actorID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Ledger summary", sum, nil)
}

// Verify GET /api/v1/ledger/verify replays the running balances.
func (h *Handlers) Verify(c *fiber.Ctx) error {
	actorID, err := target(c)
	if err != nil {
		return err
	}
	res, err := h.Service.Verify(c.UserContext(), actorID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Ledger verified", res, nil)
}

// TransactionsSummary GET /api/v1/transactions/summary folds the caller's purchase log:
// as seller for producers, as buyer otherwise.
func (h *Handlers) TransactionsSummary(c *fiber.Ctx) error {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	sum, err := h.Service.PurchaseSummary(c.UserContext(), actorID, middleware.Role(c) == constants.Producer)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Transaction summary", sum, nil)
}
