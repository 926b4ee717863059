package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"fundflow/internal/models"
)

// grvtDefaultPeriodHours is the fallback funding interval when the
// instrument listing does not state one. Rates are quoted in percent per
// interval; the interval itself varies per instrument.
const grvtDefaultPeriodHours = 8.0

// grvtTickerConcurrency bounds per-instrument ticker fan-out so a full
// universe refresh does not hammer the API.
const grvtTickerConcurrency = 10

// GrvtAdapter talks to the GRVT market-data and trading APIs.
type GrvtAdapter struct {
	marketDataURL string
	tradeURL      string
	httpClient    *http.Client

	mu        sync.Mutex
	fetched   bool
	bases     []string
	intervals map[string]float64 // base -> funding interval hours
}

func NewGrvtAdapter(marketDataURL, tradeURL string) *GrvtAdapter {
	return &GrvtAdapter{
		marketDataURL: strings.TrimRight(marketDataURL, "/"),
		tradeURL:      strings.TrimRight(tradeURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (g *GrvtAdapter) Name() string {
	return "grvt"
}

// instrument maps a base symbol to GRVT's perp instrument name.
func instrument(symbol string) string {
	return normalizeBase(symbol) + "_USDT_Perp"
}

func (g *GrvtAdapter) postJSON(ctx context.Context, baseURL, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("grvt: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("grvt: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("grvt request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("grvt: unexpected status %d for %s", resp.StatusCode, path)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse grvt response: %w", err)
	}
	return nil
}

func (g *GrvtAdapter) FundingHistory(ctx context.Context, symbol string, since time.Time) ([]models.FundingSample, error) {
	startNs := since.UnixMilli() * 1_000_000
	if startNs < 0 {
		startNs = 0
	}
	payload := map[string]any{
		"instrument": instrument(symbol),
		"start_time": strconv.FormatInt(startNs, 10),
		"limit":      1000,
	}

	var raw struct {
		Result []struct {
			FundingRate float64 `json:"funding_rate"` // percent per interval
			FundingTime int64   `json:"funding_time"` // nanoseconds
		} `json:"result"`
	}
	if err := g.postJSON(ctx, g.marketDataURL, "/full/v1/funding", payload, &raw); err != nil {
		return nil, err
	}

	interval := g.fundingInterval(ctx, symbol)
	samples := make([]models.FundingSample, 0, len(raw.Result))
	for _, entry := range raw.Result {
		if entry.FundingTime <= 0 {
			continue
		}
		samples = append(samples, models.FundingSample{
			Venue:         g.Name(),
			BaseSymbol:    normalizeBase(symbol),
			TimestampHour: floorToHour(entry.FundingTime / 1_000_000),
			RateDecimal:   entry.FundingRate / 100.0 / interval,
			PeriodHours:   interval,
		})
	}
	return samples, nil
}

func (g *GrvtAdapter) LiveFundingRates(ctx context.Context, symbols []string) (map[string]float64, error) {
	bases := symbols
	if len(bases) == 0 {
		all, err := g.listPerpBases(ctx)
		if err != nil {
			return nil, err
		}
		bases = all
	}

	rates := make(map[string]float64, len(bases))
	var mu sync.Mutex

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(grvtTickerConcurrency)
	for _, base := range bases {
		grp.Go(func() error {
			rate, err := g.fetchTickerRate(ctx, base)
			if err != nil {
				// Partial universe is fine; one dead ticker should not sink
				// the whole refresh.
				return nil
			}
			mu.Lock()
			rates[normalizeBase(base)] = rate
			mu.Unlock()
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return rates, nil
}

// refreshInstruments pulls the perp listing and caches per-instrument
// funding intervals alongside the base universe.
func (g *GrvtAdapter) refreshInstruments(ctx context.Context) error {
	var raw struct {
		Result []struct {
			Instrument           string  `json:"instrument"`
			Base                 string  `json:"base"`
			Kind                 string  `json:"kind"`
			FundingIntervalHours float64 `json:"funding_interval_hours"`
		} `json:"result"`
	}
	if err := g.postJSON(ctx, g.marketDataURL, "/full/v1/all_instruments", map[string]any{"is_active": true}, &raw); err != nil {
		return err
	}

	bases := make([]string, 0, len(raw.Result))
	intervals := make(map[string]float64, len(raw.Result))
	for _, inst := range raw.Result {
		if inst.Kind != "PERPETUAL" || inst.Base == "" {
			continue
		}
		base := strings.ToUpper(inst.Base)
		bases = append(bases, base)
		if inst.FundingIntervalHours > 0 {
			intervals[base] = inst.FundingIntervalHours
		}
	}

	g.mu.Lock()
	g.fetched = true
	g.bases = bases
	g.intervals = intervals
	g.mu.Unlock()
	return nil
}

func (g *GrvtAdapter) listPerpBases(ctx context.Context) ([]string, error) {
	if err := g.refreshInstruments(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bases, nil
}

// fundingInterval resolves an instrument's settlement interval from the
// cached listing, fetching it on first use. Unknown instruments fall back
// to the 8h default.
func (g *GrvtAdapter) fundingInterval(ctx context.Context, symbol string) float64 {
	base := normalizeBase(symbol)

	g.mu.Lock()
	interval, ok := g.intervals[base]
	fetched := g.fetched
	g.mu.Unlock()
	if ok {
		return interval
	}

	if !fetched {
		if err := g.refreshInstruments(ctx); err != nil {
			log.Warn().Err(err).Msg("grvt instrument listing unavailable, assuming 8h funding interval")
			return grvtDefaultPeriodHours
		}
		g.mu.Lock()
		interval, ok = g.intervals[base]
		g.mu.Unlock()
		if ok {
			return interval
		}
	}
	return grvtDefaultPeriodHours
}

func (g *GrvtAdapter) fetchTickerRate(ctx context.Context, symbol string) (float64, error) {
	var raw struct {
		Result struct {
			FundingRate8hCurr string `json:"funding_rate_8h_curr"` // percent
		} `json:"result"`
	}
	payload := map[string]any{"instrument": instrument(symbol)}
	if err := g.postJSON(ctx, g.marketDataURL, "/full/v1/ticker", payload, &raw); err != nil {
		return 0, err
	}

	pct, ok := parsePrice(raw.Result.FundingRate8hCurr)
	if !ok {
		return 0, fmt.Errorf("grvt: no funding rate for %s", symbol)
	}
	return pct / 100.0 / g.fundingInterval(ctx, symbol), nil
}

func (g *GrvtAdapter) OrderBook(ctx context.Context, symbol string) (*models.OrderBook, error) {
	var raw struct {
		Result struct {
			Bids []struct {
				Price string `json:"price"`
				Size  string `json:"size"`
			} `json:"bids"`
			Asks []struct {
				Price string `json:"price"`
				Size  string `json:"size"`
			} `json:"asks"`
		} `json:"result"`
	}
	payload := map[string]any{"instrument": instrument(symbol), "depth": 10}
	if err := g.postJSON(ctx, g.marketDataURL, "/full/v1/book", payload, &raw); err != nil {
		return nil, err
	}

	snapshot := &models.OrderBook{
		Venue:      g.Name(),
		Symbol:     normalizeBase(symbol),
		ReceivedAt: time.Now().UTC(),
	}
	for _, level := range raw.Result.Bids {
		price, okP := parsePrice(level.Price)
		size, okS := parsePrice(level.Size)
		if okP && okS {
			snapshot.Bids = append(snapshot.Bids, models.Level{Price: price, Size: size})
		}
	}
	for _, level := range raw.Result.Asks {
		price, okP := parsePrice(level.Price)
		size, okS := parsePrice(level.Size)
		if okP && okS {
			snapshot.Asks = append(snapshot.Asks, models.Level{Price: price, Size: size})
		}
	}
	return snapshot, nil
}

func (g *GrvtAdapter) SubmitOrder(ctx context.Context, leg models.OrderLeg) (*models.OrderAck, error) {
	payload := map[string]any{
		"order": map[string]any{
			"instrument":          instrument(leg.Symbol),
			"side":                string(leg.Side),
			"price":               strconv.FormatFloat(leg.Price, 'f', -1, 64),
			"size":                strconv.FormatFloat(leg.Size, 'f', -1, 64),
			"post_only":           true,
			"reduce_only":         false,
			"order_duration_secs": leg.ExpirySecs,
			"client_order_id":     leg.ClientOrderID,
		},
	}

	var raw struct {
		Result struct {
			OrderID string `json:"order_id"`
		} `json:"result"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := g.postJSON(ctx, g.tradeURL, "/full/v1/create_order", payload, &raw); err != nil {
		return nil, err
	}

	if raw.Message != "" && raw.Result.OrderID == "" {
		return &models.OrderAck{Accepted: false, Error: raw.Message}, nil
	}
	return &models.OrderAck{Accepted: true, OrderID: raw.Result.OrderID}, nil
}
