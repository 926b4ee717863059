package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"fundflow/internal/engine"
	"fundflow/internal/funding"
)

type ArbitrageHandler struct {
	engine *engine.Engine
}

func NewArbitrageHandler(engine *engine.Engine) *ArbitrageHandler {
	return &ArbitrageHandler{engine}
}

// Handles GET /v1/arbitrage.
func (h *ArbitrageHandler) GetSnapshot(c fiber.Ctx) error {
	lookback := queryInt(c, "lookback_hours", funding.DefaultLookbackHours)
	force := queryBool(c, "force")

	snapshot, err := h.engine.ArbitrageSnapshot(c.Context(), lookback, force)
	if err != nil {
		log.Error().Err(err).Msg("arbitrage snapshot failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(snapshot)
}

// Handles GET /v1/arbitrage/:symbol.
func (h *ArbitrageHandler) GetSymbol(c fiber.Ctx) error {
	symbol := c.Params("symbol")
	if symbol == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "symbol parameter is required",
		})
	}
	lookback := queryInt(c, "lookback_hours", funding.DefaultLookbackHours)

	result, err := h.engine.WindowYield(c.Context(), symbol, lookback)
	if err != nil {
		return symbolError(c, symbol, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// symbolError maps per-symbol computation failures onto response codes:
// missing data reads as not-found, a thin window as unprocessable, anything
// else as an upstream failure.
func symbolError(c fiber.Ctx, symbol string, err error) error {
	status := fiber.StatusBadGateway
	switch {
	case errors.Is(err, funding.ErrNoData):
		status = fiber.StatusNotFound
	case errors.Is(err, funding.ErrInsufficientSamples):
		status = fiber.StatusUnprocessableEntity
	}
	log.Warn().Err(err).Str("symbol", symbol).Msg("symbol computation failed")
	return c.Status(status).JSON(fiber.Map{
		"symbol": symbol,
		"error":  err.Error(),
	})
}

func queryInt(c fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func queryBool(c fiber.Ctx, key string) bool {
	raw := c.Query(key)
	return raw == "true" || raw == "1"
}
