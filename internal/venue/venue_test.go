package venue

import (
	"testing"

	"fundflow/internal/models"
)

func TestNormalizeBase(t *testing.T) {
	cases := map[string]string{
		"sol-perp": "SOL",
		"SOL-PERP": "SOL",
		" sol ":    "SOL",
		"BTC":      "BTC",
	}
	for input, want := range cases {
		if got := normalizeBase(input); got != want {
			t.Errorf("normalizeBase(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFloorToHour(t *testing.T) {
	hour := models.MsPerHour
	if got := floorToHour(hour + 1234); got != hour {
		t.Errorf("expected %d, got %d", hour, got)
	}
	if got := floorToHour(hour); got != hour {
		t.Errorf("exact boundary must be unchanged, got %d", got)
	}
}

func TestParsePrice(t *testing.T) {
	if v, ok := parsePrice("123.45"); !ok || v != 123.45 {
		t.Errorf("expected 123.45, got %f ok=%v", v, ok)
	}
	for _, garbage := range []string{"", "abc", "NaN", "+Inf"} {
		if _, ok := parsePrice(garbage); ok {
			t.Errorf("parsePrice(%q) must reject", garbage)
		}
	}
}

func TestSymbolFilter(t *testing.T) {
	if symbolFilter(nil) != nil {
		t.Error("empty filter must be nil (no filtering)")
	}
	filter := symbolFilter([]string{"btc-perp", "ETH"})
	if !filter["BTC"] || !filter["ETH"] {
		t.Errorf("filter must hold normalized bases, got %v", filter)
	}
}

func TestGrvtInstrument(t *testing.T) {
	if got := instrument("sol-perp"); got != "SOL_USDT_Perp" {
		t.Errorf("expected SOL_USDT_Perp, got %q", got)
	}
}

func TestParseLighterBookMessage(t *testing.T) {
	message := []byte(`{
		"channel": "order_book/SOL",
		"order_book": {
			"bids": [{"price": "150.25", "size": "3"}],
			"asks": [{"price": "150.30", "size": "2"}]
		}
	}`)

	snapshot, ok := parseLighterBookMessage(message)
	if !ok {
		t.Fatal("expected a parsed snapshot")
	}
	if len(snapshot.Bids) != 1 || snapshot.Bids[0].Price != 150.25 {
		t.Errorf("unexpected bids: %+v", snapshot.Bids)
	}
	if len(snapshot.Asks) != 1 || snapshot.Asks[0].Size != 2 {
		t.Errorf("unexpected asks: %+v", snapshot.Asks)
	}
}

func TestParseLighterBookMessageIgnoresOtherChannels(t *testing.T) {
	if _, ok := parseLighterBookMessage([]byte(`{"channel":"trades/SOL"}`)); ok {
		t.Error("non-book channels must be ignored")
	}
	if _, ok := parseLighterBookMessage([]byte(`not json`)); ok {
		t.Error("malformed messages must be ignored")
	}
	if _, ok := parseLighterBookMessage([]byte(`{"channel":"order_book/SOL","order_book":{}}`)); ok {
		t.Error("empty books must be ignored")
	}
}
