package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fundflow/api"
	"fundflow/config"
	"fundflow/internal/book"
	"fundflow/internal/engine"
	"fundflow/internal/executor"
	"fundflow/internal/venue"
)

func main() {
	// ── 1. Logger setup
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// ── 2. Root context setup
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── 3. Config
	cfg := config.Load()
	log.Info().Msg("config loaded")

	// ── 4. Venue adapters
	left, err := buildVenue(cfg.LeftVenue, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("left venue setup failed")
	}
	right, err := buildVenue(cfg.RightVenue, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("right venue setup failed")
	}
	log.Info().
		Str("left", left.Name()).
		Str("right", right.Name()).
		Msg("venue adapters initialized")

	// ── 5. Live book feed
	feed := book.NewFeed()
	tracked := 0
	for _, v := range []venue.Venue{left, right} {
		streamer, ok := v.(venue.BookStreamer)
		if !ok {
			continue
		}
		for _, symbol := range cfg.StreamSymbols {
			feed.Track(streamer.BookStream(symbol))
			tracked++
		}
	}
	if tracked > 0 {
		go func() {
			if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("book feed stopped")
			}
		}()
	}
	log.Info().Int("streams", tracked).Msg("book feed started")

	// ── 6. Engine + execution coordinator
	eng := engine.New(left, right, feed, engine.Options{
		Workers:             cfg.Workers,
		RateRefreshInterval: time.Duration(cfg.RateRefreshSecs) * time.Second,
	})
	coordinator := executor.NewCoordinator(left, right, feed, cfg.OrderExpirySecs)

	// ── 7. Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Fundflow",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	})

	// ── 8. Routes
	api.SetupRoutes(app, eng, coordinator)

	// ── 9. Graceful shutdown listener
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	// ── 10. Start server (blocking)
	log.Info().Str("port", cfg.AppPort).Msg("starting server")
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func buildVenue(name string, cfg *config.Config) (venue.Venue, error) {
	switch name {
	case "lighter":
		return venue.NewLighterAdapter(cfg.LighterBaseURL, cfg.LighterWsURL), nil
	case "grvt":
		return venue.NewGrvtAdapter(cfg.GrvtMarketDataURL, cfg.GrvtTradeURL), nil
	case "hyperliquid":
		return venue.NewHyperliquidAdapter(cfg.HyperliquidURL), nil
	default:
		return nil, fmt.Errorf("unknown venue %q (want lighter, grvt or hyperliquid)", name)
	}
}
