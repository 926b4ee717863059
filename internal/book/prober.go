package book

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"fundflow/internal/models"
)

// ErrBookUnavailable means no snapshot (or an empty side) exists for a leg.
var ErrBookUnavailable = errors.New("insufficient book depth")

// nearTouchLevels bounds how deep the tick estimator looks on each side.
const nearTouchLevels = 5

// TickSize estimates the venue's price increment empirically, since not every
// venue advertises it: the median of the positive gaps between consecutive
// distinct price levels near the touch, across both sides. Zero when the book
// is too shallow to show any gap.
func TickSize(book *models.OrderBook) float64 {
	var gaps []float64
	gaps = appendLevelGaps(gaps, book.Bids)
	gaps = appendLevelGaps(gaps, book.Asks)
	if len(gaps) == 0 {
		return 0
	}
	sort.Float64s(gaps)
	mid := len(gaps) / 2
	if len(gaps)%2 == 1 {
		return gaps[mid]
	}
	return (gaps[mid-1] + gaps[mid]) / 2
}

func appendLevelGaps(gaps []float64, levels []models.Level) []float64 {
	limit := len(levels)
	if limit > nearTouchLevels {
		limit = nearTouchLevels
	}
	for i := 1; i < limit; i++ {
		gap := math.Abs(levels[i].Price - levels[i-1].Price)
		if gap > 0 {
			gaps = append(gaps, gap)
		}
	}
	return gaps
}

// MakerPrice derives the best resting price for the requested side that does
// not cross the opposing book: one tick inside the touch when the bid-ask gap
// exceeds one tick, the touch itself otherwise.
func MakerPrice(book *models.OrderBook, side models.Side) (float64, error) {
	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 0, ErrBookUnavailable
	}
	bestBid := book.Bids[0].Price
	bestAsk := book.Asks[0].Price
	if bestBid <= 0 || bestAsk <= 0 || bestAsk < bestBid {
		return 0, fmt.Errorf("%w: crossed or empty top of book", ErrBookUnavailable)
	}

	tick := TickSize(book)
	gap := bestAsk - bestBid

	switch side {
	case models.SideBuy:
		if tick > 0 && gap > tick {
			return bestBid + tick, nil
		}
		return bestBid, nil
	case models.SideSell:
		if tick > 0 && gap > tick {
			return bestAsk - tick, nil
		}
		return bestAsk, nil
	default:
		return 0, fmt.Errorf("unknown order side %q", side)
	}
}

// BidAskSpreadBps returns the top-of-book spread in basis points of the mid.
// Books with no usable touch fall back to the given default, so a missing
// quote degrades scoring instead of aborting it.
func BidAskSpreadBps(book *models.OrderBook, fallbackBps float64) float64 {
	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return fallbackBps
	}
	bid := book.Bids[0].Price
	ask := book.Asks[0].Price
	if bid <= 0 || ask <= 0 || ask < bid {
		return fallbackBps
	}
	mid := (bid + ask) / 2
	return (ask - bid) / mid * 10_000
}
