package handlers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"fundflow/internal/engine"
)

type RatesHandler struct {
	engine *engine.Engine
}

func NewRatesHandler(engine *engine.Engine) *RatesHandler {
	return &RatesHandler{engine}
}

// Handles GET /v1/rates.
func (h *RatesHandler) GetRates(c fiber.Ctx) error {
	force := queryBool(c, "force")

	snapshot, err := h.engine.LiveRates(c.Context(), force)
	if err != nil {
		log.Error().Err(err).Msg("live rate fetch failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(snapshot)
}

// Handles GET /v1/symbols.
func (h *RatesHandler) GetSymbols(c fiber.Ctx) error {
	symbols, err := h.engine.AvailableSymbols(c.Context())
	if err != nil {
		log.Error().Err(err).Msg("symbol listing failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"symbols": symbols,
		"count":   len(symbols),
	})
}
