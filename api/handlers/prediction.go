package handlers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"fundflow/internal/engine"
)

type PredictionHandler struct {
	engine *engine.Engine
}

func NewPredictionHandler(engine *engine.Engine) *PredictionHandler {
	return &PredictionHandler{engine}
}

// Handles GET /v1/prediction.
func (h *PredictionHandler) GetSnapshot(c fiber.Ctx) error {
	force := queryBool(c, "force")

	snapshot, err := h.engine.PredictionSnapshot(c.Context(), force)
	if err != nil {
		log.Error().Err(err).Msg("prediction snapshot failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(snapshot)
}

// Handles GET /v1/prediction/:symbol.
func (h *PredictionHandler) GetSymbol(c fiber.Ctx) error {
	symbol := c.Params("symbol")
	if symbol == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "symbol parameter is required",
		})
	}

	result, err := h.engine.Prediction(c.Context(), symbol)
	if err != nil {
		return symbolError(c, symbol, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}
