package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fundflow/internal/book"
	"fundflow/internal/models"
)

// lighterPeriodHours is Lighter's native settlement period. Its live rates
// are quoted per period and divided down to the hourly equivalent; the
// history endpoint already resamples to 1h buckets.
const lighterPeriodHours = 8.0

// LighterAdapter talks to the Lighter REST and websocket APIs.
type LighterAdapter struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
}

func NewLighterAdapter(baseURL, wsURL string) *LighterAdapter {
	return &LighterAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		wsURL:   wsURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (l *LighterAdapter) Name() string {
	return "lighter"
}

func (l *LighterAdapter) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("lighter: failed to build request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lighter request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lighter: unexpected status %d for %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse lighter response: %w", err)
	}
	return nil
}

// marketID resolves a base symbol to Lighter's numeric market identifier.
func (l *LighterAdapter) marketID(ctx context.Context, symbol string) (int, error) {
	var raw struct {
		OrderBooks []struct {
			Symbol   string `json:"symbol"`
			MarketID int    `json:"market_id"`
		} `json:"order_books"`
	}
	if err := l.getJSON(ctx, "/api/v1/orderBooks", &raw); err != nil {
		return 0, err
	}

	want := normalizeBase(symbol)
	for _, market := range raw.OrderBooks {
		if normalizeBase(market.Symbol) == want && market.MarketID > 0 {
			return market.MarketID, nil
		}
	}
	return 0, fmt.Errorf("lighter: unknown market %q", symbol)
}

func (l *LighterAdapter) FundingHistory(ctx context.Context, symbol string, since time.Time) ([]models.FundingSample, error) {
	marketID, err := l.marketID(ctx, symbol)
	if err != nil {
		return nil, err
	}

	end := time.Now().UTC().Unix()
	start := since.Unix()
	if start < 0 {
		start = 0
	}
	hours := (end-start)/3600 + 1
	if hours > 1000 {
		hours = 1000
	}

	query := url.Values{}
	query.Set("market_id", strconv.Itoa(marketID))
	query.Set("resolution", "1h")
	query.Set("start_timestamp", strconv.FormatInt(start, 10))
	query.Set("end_timestamp", strconv.FormatInt(end, 10))
	query.Set("count_back", strconv.FormatInt(hours, 10))

	var raw struct {
		Fundings []struct {
			Timestamp int64  `json:"timestamp"` // seconds
			Rate      string `json:"rate"`
			Direction string `json:"direction"`
		} `json:"fundings"`
	}
	if err := l.getJSON(ctx, "/api/v1/fundings?"+query.Encode(), &raw); err != nil {
		return nil, err
	}

	samples := make([]models.FundingSample, 0, len(raw.Fundings))
	for _, entry := range raw.Fundings {
		rate, ok := parsePrice(entry.Rate)
		if !ok || entry.Timestamp <= 0 {
			continue
		}
		// Lighter reports magnitude in percent plus the side that pays.
		signed := rate / 100.0
		if strings.EqualFold(entry.Direction, "short") {
			signed = -signed
		}
		samples = append(samples, models.FundingSample{
			Venue:         l.Name(),
			BaseSymbol:    normalizeBase(symbol),
			TimestampHour: floorToHour(entry.Timestamp * 1000),
			RateDecimal:   signed,
			PeriodHours:   1, // 1h resampled buckets
		})
	}
	return samples, nil
}

func (l *LighterAdapter) LiveFundingRates(ctx context.Context, symbols []string) (map[string]float64, error) {
	var raw struct {
		FundingRates []struct {
			Exchange string  `json:"exchange"`
			Symbol   string  `json:"symbol"`
			Rate     float64 `json:"rate"`
		} `json:"funding_rates"`
	}
	if err := l.getJSON(ctx, "/api/v1/funding-rates", &raw); err != nil {
		return nil, err
	}

	wanted := symbolFilter(symbols)
	rates := make(map[string]float64)
	for _, entry := range raw.FundingRates {
		// The endpoint aggregates several exchanges; keep only Lighter's own.
		if !strings.EqualFold(entry.Exchange, "lighter") {
			continue
		}
		base := normalizeBase(entry.Symbol)
		if wanted != nil && !wanted[base] {
			continue
		}
		rates[base] = entry.Rate / lighterPeriodHours
	}
	return rates, nil
}

func (l *LighterAdapter) OrderBook(ctx context.Context, symbol string) (*models.OrderBook, error) {
	marketID, err := l.marketID(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Bids []struct {
			Price string `json:"price"`
			Size  string `json:"remaining_base_amount"`
		} `json:"bids"`
		Asks []struct {
			Price string `json:"price"`
			Size  string `json:"remaining_base_amount"`
		} `json:"asks"`
	}
	path := fmt.Sprintf("/api/v1/orderBookOrders?market_id=%d&limit=10", marketID)
	if err := l.getJSON(ctx, path, &raw); err != nil {
		return nil, err
	}

	bookSnapshot := &models.OrderBook{
		Venue:      l.Name(),
		Symbol:     normalizeBase(symbol),
		ReceivedAt: time.Now().UTC(),
	}
	for _, level := range raw.Bids {
		price, okP := parsePrice(level.Price)
		size, okS := parsePrice(level.Size)
		if okP && okS {
			bookSnapshot.Bids = append(bookSnapshot.Bids, models.Level{Price: price, Size: size})
		}
	}
	for _, level := range raw.Asks {
		price, okP := parsePrice(level.Price)
		size, okS := parsePrice(level.Size)
		if okP && okS {
			bookSnapshot.Asks = append(bookSnapshot.Asks, models.Level{Price: price, Size: size})
		}
	}
	return bookSnapshot, nil
}

func (l *LighterAdapter) SubmitOrder(ctx context.Context, leg models.OrderLeg) (*models.OrderAck, error) {
	payload := map[string]any{
		"symbol":          leg.Symbol,
		"side":            string(leg.Side),
		"price":           leg.Price,
		"base_amount":     leg.Size,
		"client_order_id": leg.ClientOrderID,
		"time_in_force":   "post_only",
		"reduce_only":     false,
		"expiry_secs":     leg.ExpirySecs,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("lighter order: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("lighter order: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lighter order request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var raw struct {
		OrderID string `json:"order_id"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(respBody, &raw)

	if resp.StatusCode != http.StatusOK {
		reason := raw.Message
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return &models.OrderAck{Accepted: false, Error: reason}, nil
	}
	return &models.OrderAck{Accepted: true, OrderID: raw.OrderID}, nil
}

// BookStream subscribes to Lighter's order-book channel.
func (l *LighterAdapter) BookStream(symbol string) book.StreamConfig {
	base := normalizeBase(symbol)
	return book.StreamConfig{
		Venue:  l.Name(),
		Symbol: base,
		URL:    l.wsURL,
		Subscribe: map[string]string{
			"type":    "subscribe",
			"channel": "order_book/" + base,
		},
		Parse: parseLighterBookMessage,
	}
}

func parseLighterBookMessage(message []byte) (*models.OrderBook, bool) {
	var raw struct {
		Channel   string `json:"channel"`
		OrderBook struct {
			Bids []struct {
				Price string `json:"price"`
				Size  string `json:"size"`
			} `json:"bids"`
			Asks []struct {
				Price string `json:"price"`
				Size  string `json:"size"`
			} `json:"asks"`
		} `json:"order_book"`
	}
	if err := json.Unmarshal(message, &raw); err != nil {
		return nil, false
	}
	if !strings.HasPrefix(raw.Channel, "order_book") {
		return nil, false
	}
	if len(raw.OrderBook.Bids) == 0 && len(raw.OrderBook.Asks) == 0 {
		return nil, false
	}

	snapshot := &models.OrderBook{}
	for _, level := range raw.OrderBook.Bids {
		price, okP := parsePrice(level.Price)
		size, okS := parsePrice(level.Size)
		if okP && okS {
			snapshot.Bids = append(snapshot.Bids, models.Level{Price: price, Size: size})
		}
	}
	for _, level := range raw.OrderBook.Asks {
		price, okP := parsePrice(level.Price)
		size, okS := parsePrice(level.Size)
		if okP && okS {
			snapshot.Asks = append(snapshot.Asks, models.Level{Price: price, Size: size})
		}
	}
	return snapshot, true
}

// normalizeBase strips the perp suffix and uppercases, so "sol-perp",
// "SOL-PERP" and "SOL" all key the same market.
func normalizeBase(symbol string) string {
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.TrimSuffix(upper, "-PERP")
}

func symbolFilter(symbols []string) map[string]bool {
	if len(symbols) == 0 {
		return nil
	}
	filter := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		filter[normalizeBase(s)] = true
	}
	return filter
}
