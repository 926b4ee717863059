package venue

import (
	"context"
	"math"
	"strconv"
	"time"

	"fundflow/internal/book"
	"fundflow/internal/models"
)

// Venue is one derivatives exchange the engine can read from and trade on.
// FundingHistory returns samples since the given time; an empty slice means
// the venue genuinely has no data for the window, which is not an error.
type Venue interface {
	Name() string
	FundingHistory(ctx context.Context, symbol string, since time.Time) ([]models.FundingSample, error)
	// LiveFundingRates returns the current rate per base symbol (decimal per
	// hour). An empty symbols filter means "everything the venue lists".
	LiveFundingRates(ctx context.Context, symbols []string) (map[string]float64, error)
	OrderBook(ctx context.Context, symbol string) (*models.OrderBook, error)
	SubmitOrder(ctx context.Context, leg models.OrderLeg) (*models.OrderAck, error)
}

// BookStreamer is implemented by venues that expose a live websocket book
// feed. Venues without one are probed over REST instead.
type BookStreamer interface {
	BookStream(symbol string) book.StreamConfig
}

const requestTimeout = 10 * time.Second

// floorToHour aligns a millisecond timestamp to its hour boundary.
func floorToHour(ms int64) int64 {
	return (ms / models.MsPerHour) * models.MsPerHour
}

// parsePrice converts exchange string numbers; returns ok=false on garbage
// or non-finite values rather than propagating NaN into the pipeline.
func parsePrice(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
