package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fundflow/internal/models"
)

// HyperliquidAdapter reads Hyperliquid's info API. Hyperliquid settles
// hourly and quotes decimal rates, so no unit conversion is needed. The
// adapter is data-only: order submission requires a signing wallet that sits
// outside this service.
type HyperliquidAdapter struct {
	baseURL    string
	httpClient *http.Client
}

func NewHyperliquidAdapter(baseURL string) *HyperliquidAdapter {
	return &HyperliquidAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (h *HyperliquidAdapter) Name() string {
	return "hyperliquid"
}

// info issues one typed POST to the /info endpoint.
func (h *HyperliquidAdapter) info(ctx context.Context, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("hyperliquid: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/info", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("hyperliquid: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hyperliquid request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hyperliquid: unexpected status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse hyperliquid response: %w", err)
	}
	return nil
}

func (h *HyperliquidAdapter) FundingHistory(ctx context.Context, symbol string, since time.Time) ([]models.FundingSample, error) {
	payload := map[string]any{
		"type":      "fundingHistory",
		"coin":      normalizeBase(symbol),
		"startTime": since.UnixMilli(),
	}

	var raw []struct {
		Time        int64  `json:"time"`
		FundingRate string `json:"fundingRate"`
	}
	if err := h.info(ctx, payload, &raw); err != nil {
		return nil, err
	}

	samples := make([]models.FundingSample, 0, len(raw))
	for _, entry := range raw {
		rate, ok := parsePrice(entry.FundingRate)
		if !ok || entry.Time <= 0 {
			continue
		}
		samples = append(samples, models.FundingSample{
			Venue:         h.Name(),
			BaseSymbol:    normalizeBase(symbol),
			TimestampHour: floorToHour(entry.Time),
			RateDecimal:   rate,
			PeriodHours:   1,
		})
	}
	return samples, nil
}

func (h *HyperliquidAdapter) LiveFundingRates(ctx context.Context, symbols []string) (map[string]float64, error) {
	// metaAndAssetCtxs answers with a two-element array: the asset universe
	// and the matching per-asset contexts, index-aligned.
	var raw []json.RawMessage
	if err := h.info(ctx, map[string]any{"type": "metaAndAssetCtxs"}, &raw); err != nil {
		return nil, err
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("hyperliquid: unexpected metaAndAssetCtxs payload")
	}

	var meta struct {
		Universe []struct {
			Name       string `json:"name"`
			IsDelisted bool   `json:"isDelisted"`
		} `json:"universe"`
	}
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return nil, fmt.Errorf("failed to parse hyperliquid universe: %w", err)
	}

	var contexts []struct {
		Funding string `json:"funding"`
	}
	if err := json.Unmarshal(raw[1], &contexts); err != nil {
		return nil, fmt.Errorf("failed to parse hyperliquid contexts: %w", err)
	}

	wanted := symbolFilter(symbols)
	rates := make(map[string]float64)
	for i, asset := range meta.Universe {
		if asset.IsDelisted || i >= len(contexts) {
			continue
		}
		base := normalizeBase(asset.Name)
		if wanted != nil && !wanted[base] {
			continue
		}
		if rate, ok := parsePrice(contexts[i].Funding); ok {
			rates[base] = rate
		}
	}
	return rates, nil
}

func (h *HyperliquidAdapter) OrderBook(ctx context.Context, symbol string) (*models.OrderBook, error) {
	var raw struct {
		Levels [][]struct {
			Px string `json:"px"`
			Sz string `json:"sz"`
		} `json:"levels"`
	}
	payload := map[string]any{"type": "l2Book", "coin": normalizeBase(symbol)}
	if err := h.info(ctx, payload, &raw); err != nil {
		return nil, err
	}
	if len(raw.Levels) < 2 {
		return nil, fmt.Errorf("hyperliquid: malformed l2Book for %s", symbol)
	}

	snapshot := &models.OrderBook{
		Venue:      h.Name(),
		Symbol:     normalizeBase(symbol),
		ReceivedAt: time.Now().UTC(),
	}
	for _, level := range raw.Levels[0] {
		price, okP := parsePrice(level.Px)
		size, okS := parsePrice(level.Sz)
		if okP && okS {
			snapshot.Bids = append(snapshot.Bids, models.Level{Price: price, Size: size})
		}
	}
	for _, level := range raw.Levels[1] {
		price, okP := parsePrice(level.Px)
		size, okS := parsePrice(level.Sz)
		if okP && okS {
			snapshot.Asks = append(snapshot.Asks, models.Level{Price: price, Size: size})
		}
	}
	return snapshot, nil
}

func (h *HyperliquidAdapter) SubmitOrder(ctx context.Context, leg models.OrderLeg) (*models.OrderAck, error) {
	return nil, fmt.Errorf("hyperliquid: order submission not supported (data-only venue)")
}
