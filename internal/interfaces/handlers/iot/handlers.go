package iot

import (
	"greencoin-backend/internal/application/ingestion"
	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/middleware"
	"greencoin-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *ingestion.Service
}

// RecordReading POST /api/v1/iot/readings
func (h *Handlers) RecordReading(c *fiber.Ctx) error {
	producerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var sample domain.Sample
	if err := c.BodyParser(&sample); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	agg, err := h.Service.RecordReading(c.UserContext(), producerID, sample)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Reading recorded", agg, nil)
}

// Latest GET /api/v1/iot/readings/latest
func (h *Handlers) Latest(c *fiber.Ctx) error {
	producerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	agg, err := h.Service.Latest(c.UserContext(), producerID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Latest readings", agg, nil)
}

// SubmitBatch POST /api/v1/producer/batches
func (h *Handlers) SubmitBatch(c *fiber.Ctx) error {
	producerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	batch, err := h.Service.SubmitBatch(c.UserContext(), producerID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Batch submitted", batch, nil)
}

// Stats GET /api/v1/producer/stats
func (h *Handlers) Stats(c *fiber.Ctx) error {
	producerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	stats, err := h.Service.ProducerStats(c.UserContext(), producerID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Producer stats", stats, nil)
}
