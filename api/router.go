package api

import (
	"github.com/gofiber/fiber/v3"

	"fundflow/api/handlers"
	"fundflow/internal/engine"
	"fundflow/internal/executor"
)

func SetupRoutes(app *fiber.App, eng *engine.Engine, coordinator *executor.Coordinator) {
	arbitrageHandler := handlers.NewArbitrageHandler(eng)
	predictionHandler := handlers.NewPredictionHandler(eng)
	ratesHandler := handlers.NewRatesHandler(eng)
	executeHandler := handlers.NewExecuteHandler(coordinator)

	app.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	v1 := app.Group("/v1")

	v1.Get("/arbitrage", arbitrageHandler.GetSnapshot)
	v1.Get("/arbitrage/:symbol", arbitrageHandler.GetSymbol)
	v1.Get("/prediction", predictionHandler.GetSnapshot)
	v1.Get("/prediction/:symbol", predictionHandler.GetSymbol)
	v1.Get("/symbols", ratesHandler.GetSymbols)
	v1.Get("/rates", ratesHandler.GetRates)
	v1.Post("/execute", executeHandler.PostExecute)
}
