package book

import (
	"errors"
	"math"
	"testing"

	"fundflow/internal/models"
)

func ladder(prices ...float64) []models.Level {
	levels := make([]models.Level, 0, len(prices))
	for _, p := range prices {
		levels = append(levels, models.Level{Price: p, Size: 1})
	}
	return levels
}

func testBook(bids, asks []models.Level) *models.OrderBook {
	return &models.OrderBook{
		Venue:  "test",
		Symbol: "BTC",
		Bids:   bids,
		Asks:   asks,
	}
}

func TestTickSizeMedianOfGaps(t *testing.T) {
	book := testBook(
		ladder(100.0, 99.9, 99.8),
		ladder(100.3, 100.4, 100.5),
	)
	if tick := TickSize(book); math.Abs(tick-0.1) > 1e-9 {
		t.Errorf("expected tick 0.1, got %f", tick)
	}
}

func TestTickSizeIgnoresDeepLevels(t *testing.T) {
	// A large gap past the near-touch window must not skew the estimate.
	book := testBook(
		ladder(100.0, 99.9, 99.8, 99.7, 99.6, 50.0),
		ladder(100.3, 100.4),
	)
	if tick := TickSize(book); math.Abs(tick-0.1) > 1e-9 {
		t.Errorf("expected tick 0.1, got %f", tick)
	}
}

func TestTickSizeShallowBook(t *testing.T) {
	book := testBook(ladder(100.0), ladder(100.3))
	if tick := TickSize(book); tick != 0 {
		t.Errorf("single-level book has no observable tick, got %f", tick)
	}
}

func TestMakerPriceInsideTouch(t *testing.T) {
	book := testBook(
		ladder(100.0, 99.9),
		ladder(100.5, 100.6),
	)

	buy, err := MakerPrice(book, models.SideBuy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(buy-100.1) > 1e-9 {
		t.Errorf("expected buy one tick above best bid, got %f", buy)
	}

	sell, err := MakerPrice(book, models.SideSell)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(sell-100.4) > 1e-9 {
		t.Errorf("expected sell one tick below best ask, got %f", sell)
	}
}

func TestMakerPriceAtTouchWhenGapTight(t *testing.T) {
	// Gap equals one tick: improving would cross, so rest at the touch.
	book := testBook(
		ladder(100.0, 99.9),
		ladder(100.1, 100.2),
	)

	buy, err := MakerPrice(book, models.SideBuy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buy != 100.0 {
		t.Errorf("expected buy at best bid, got %f", buy)
	}

	sell, err := MakerPrice(book, models.SideSell)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sell != 100.1 {
		t.Errorf("expected sell at best ask, got %f", sell)
	}
}

func TestMakerPriceNeverCrosses(t *testing.T) {
	book := testBook(
		ladder(100.0, 99.9, 99.8),
		ladder(100.5, 100.6, 100.7),
	)

	buy, _ := MakerPrice(book, models.SideBuy)
	if buy >= book.Asks[0].Price {
		t.Errorf("buy price %f crosses best ask %f", buy, book.Asks[0].Price)
	}
	sell, _ := MakerPrice(book, models.SideSell)
	if sell <= book.Bids[0].Price {
		t.Errorf("sell price %f crosses best bid %f", sell, book.Bids[0].Price)
	}
}

func TestMakerPriceUnavailable(t *testing.T) {
	cases := []*models.OrderBook{
		nil,
		testBook(nil, ladder(100.1)),
		testBook(ladder(100.0), nil),
	}
	for i, book := range cases {
		if _, err := MakerPrice(book, models.SideBuy); !errors.Is(err, ErrBookUnavailable) {
			t.Errorf("case %d: expected ErrBookUnavailable, got %v", i, err)
		}
	}
}

func TestMakerPriceCrossedTop(t *testing.T) {
	book := testBook(ladder(100.2), ladder(100.0))
	if _, err := MakerPrice(book, models.SideBuy); !errors.Is(err, ErrBookUnavailable) {
		t.Errorf("expected ErrBookUnavailable on crossed top, got %v", err)
	}
}

func TestBidAskSpreadBps(t *testing.T) {
	book := testBook(ladder(99.95), ladder(100.05))
	if got := BidAskSpreadBps(book, 20); math.Abs(got-10) > 1e-9 {
		t.Errorf("expected 10 bps, got %f", got)
	}
}

func TestBidAskSpreadBpsFallback(t *testing.T) {
	if got := BidAskSpreadBps(nil, 20); got != 20 {
		t.Errorf("expected fallback 20, got %f", got)
	}
	if got := BidAskSpreadBps(testBook(nil, ladder(100.0)), 20); got != 20 {
		t.Errorf("expected fallback on one-sided book, got %f", got)
	}
}
