package handlers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"fundflow/internal/executor"
	"fundflow/internal/models"
)

type ExecuteHandler struct {
	coordinator *executor.Coordinator
}

func NewExecuteHandler(coordinator *executor.Coordinator) *ExecuteHandler {
	return &ExecuteHandler{coordinator}
}

type executeRequest struct {
	Symbol      string  `json:"symbol"`
	Direction   string  `json:"direction"`
	NotionalUSD float64 `json:"notional_usd"`
}

// Handles POST /v1/execute. The attempt record comes back whatever the
// outcome; a partial failure that exhausts its retry reports the venue left
// unhedged rather than unwinding it.
func (h *ExecuteHandler) PostExecute(c fiber.Ctx) error {
	var req executeRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.Symbol == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "symbol is required",
		})
	}
	if req.NotionalUSD <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "notional_usd must be positive",
		})
	}

	log.Info().
		Str("symbol", req.Symbol).
		Str("direction", req.Direction).
		Float64("notional_usd", req.NotionalUSD).
		Msg("execution requested")

	attempt := h.coordinator.Execute(c.Context(), req.Symbol, models.Direction(req.Direction), req.NotionalUSD)

	status := fiber.StatusOK
	if attempt.Status == models.AttemptFailed {
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(attempt)
}
