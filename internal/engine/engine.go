// Package engine ties the venue adapters, funding math and book prober into
// the per-symbol and batch operations the API serves.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"fundflow/internal/book"
	"fundflow/internal/funding"
	"fundflow/internal/models"
	"fundflow/internal/venue"
)

const (
	// DefaultWorkers bounds the batch fan-out across symbols.
	DefaultWorkers = 4
	// DefaultSnapshotTTL is how long a batch snapshot is served from cache.
	DefaultSnapshotTTL = 10 * time.Minute
	// DefaultRateRefreshInterval gates live-rate refreshes; force bypasses it.
	DefaultRateRefreshInterval = 30 * time.Second
	// DefaultSpreadFallbackBps stands in for a leg whose book cannot be read,
	// wide enough to visibly penalize the recommendation score.
	DefaultSpreadFallbackBps = 20.0

	symbolsTTL = time.Hour
	// historyMarginHours over-fetches so the as-of join has a right-side
	// sample to carry into the start of the window.
	historyMarginHours = 8
)

// Books hands out the latest streamed snapshot; nil-safe via the engine.
type Books interface {
	Latest(venueName, symbol string) (*models.OrderBook, bool)
}

// Options tune the engine; zero values fall back to the defaults above.
type Options struct {
	Workers             int
	SnapshotTTL         time.Duration
	RateRefreshInterval time.Duration
	SpreadFallbackBps   float64
}

// RatesSnapshot is one refresh of both venues' live funding maps.
type RatesSnapshot struct {
	LeftVenue  string             `json:"left_venue"`
	RightVenue string             `json:"right_venue"`
	Left       map[string]float64 `json:"left"`
	Right      map[string]float64 `json:"right"`
	Common     []string           `json:"common_symbols"`
	FetchedAt  time.Time          `json:"fetched_at"`
}

// ArbitrageSnapshot is one batch realized-yield computation.
type ArbitrageSnapshot struct {
	LookbackHours int                            `json:"lookback_hours"`
	Entries       []models.ArbitrageWindowResult `json:"entries"`
	Failures      []models.SymbolFailure         `json:"failures"`
	ComputedAt    time.Time                      `json:"computed_at"`
}

// PredictionSnapshot is one batch forecast, scored against its own population.
type PredictionSnapshot struct {
	Entries    []models.PredictionResult `json:"entries"`
	Failures   []models.SymbolFailure    `json:"failures"`
	ComputedAt time.Time                 `json:"computed_at"`
}

// Engine owns the read-side caches and the cross-venue computations. All
// caches are read-then-replace: a stale entry keeps serving until the
// replacement is fully built.
type Engine struct {
	left  venue.Venue
	right venue.Venue
	books Books

	workers           int
	snapshotTTL       time.Duration
	spreadFallbackBps float64
	gate              *rate.Limiter

	mu          sync.RWMutex
	rates       *RatesSnapshot
	symbols     []string
	symbolsAt   time.Time
	arbCache    map[int]*ArbitrageSnapshot
	predictions *PredictionSnapshot
}

func New(left, right venue.Venue, books Books, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = DefaultSnapshotTTL
	}
	if opts.RateRefreshInterval <= 0 {
		opts.RateRefreshInterval = DefaultRateRefreshInterval
	}
	if opts.SpreadFallbackBps <= 0 {
		opts.SpreadFallbackBps = DefaultSpreadFallbackBps
	}
	return &Engine{
		left:              left,
		right:             right,
		books:             books,
		workers:           opts.Workers,
		snapshotTTL:       opts.SnapshotTTL,
		spreadFallbackBps: opts.SpreadFallbackBps,
		gate:              rate.NewLimiter(rate.Every(opts.RateRefreshInterval), 1),
		arbCache:          make(map[int]*ArbitrageSnapshot),
	}
}

func (e *Engine) LeftVenue() venue.Venue  { return e.left }
func (e *Engine) RightVenue() venue.Venue { return e.right }

// LiveRates returns the current funding maps of both venues. Refreshes are
// gated by the configured interval; force bypasses the gate, a cache miss
// always fetches regardless of it.
func (e *Engine) LiveRates(ctx context.Context, force bool) (*RatesSnapshot, error) {
	e.mu.RLock()
	cached := e.rates
	e.mu.RUnlock()

	// Every refresh draws from the gate, so a cache miss still starts the
	// interval clock for the calls that follow it.
	allowed := e.gate.Allow()
	if cached != nil && !force && !allowed {
		return cached, nil
	}

	fresh, err := e.fetchLiveRates(ctx)
	if err != nil {
		if cached != nil {
			log.Warn().Err(err).Msg("live rate refresh failed, serving cached snapshot")
			return cached, nil
		}
		return nil, err
	}

	e.mu.Lock()
	e.rates = fresh
	e.mu.Unlock()
	return fresh, nil
}

func (e *Engine) fetchLiveRates(ctx context.Context) (*RatesSnapshot, error) {
	leftRates, rightRates, err := fetchPair(ctx,
		func(ctx context.Context) (map[string]float64, error) {
			return e.left.LiveFundingRates(ctx, nil)
		},
		func(ctx context.Context) (map[string]float64, error) {
			return e.right.LiveFundingRates(ctx, nil)
		})
	if err != nil {
		return nil, err
	}

	common := make([]string, 0)
	for symbol := range leftRates {
		if _, ok := rightRates[symbol]; ok {
			common = append(common, symbol)
		}
	}
	sort.Strings(common)

	return &RatesSnapshot{
		LeftVenue:  e.left.Name(),
		RightVenue: e.right.Name(),
		Left:       leftRates,
		Right:      rightRates,
		Common:     common,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// AvailableSymbols is the intersection of both venues' live listings.
func (e *Engine) AvailableSymbols(ctx context.Context) ([]string, error) {
	e.mu.RLock()
	cached, fetchedAt := e.symbols, e.symbolsAt
	e.mu.RUnlock()
	if cached != nil && time.Since(fetchedAt) < symbolsTTL {
		return cached, nil
	}

	snapshot, err := e.LiveRates(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}

	e.mu.Lock()
	e.symbols = snapshot.Common
	e.symbolsAt = time.Now()
	e.mu.Unlock()
	return snapshot.Common, nil
}

// reconciledSeries fetches both venues' funding histories for the trailing
// window concurrently and merges them. An empty history on either side is a
// hard per-symbol failure naming the venue.
func (e *Engine) reconciledSeries(ctx context.Context, symbol string, lookbackHours int) ([]models.ReconciledPoint, error) {
	since := time.Now().UTC().Add(-time.Duration(lookbackHours+historyMarginHours) * time.Hour)

	leftSamples, rightSamples, err := fetchPair(ctx,
		func(ctx context.Context) ([]models.FundingSample, error) {
			return e.left.FundingHistory(ctx, symbol, since)
		},
		func(ctx context.Context) ([]models.FundingSample, error) {
			return e.right.FundingHistory(ctx, symbol, since)
		})
	if err != nil {
		return nil, err
	}
	if len(leftSamples) == 0 {
		return nil, fmt.Errorf("no funding data on %s for %s", e.left.Name(), symbol)
	}
	if len(rightSamples) == 0 {
		return nil, fmt.Errorf("no funding data on %s for %s", e.right.Name(), symbol)
	}

	return funding.Reconcile(leftSamples, rightSamples)
}

// WindowYield computes one symbol's realized yield over the trailing window.
func (e *Engine) WindowYield(ctx context.Context, symbol string, lookbackHours int) (*models.ArbitrageWindowResult, error) {
	if lookbackHours <= 0 {
		lookbackHours = funding.DefaultLookbackHours
	}
	points, err := e.reconciledSeries(ctx, symbol, lookbackHours)
	if err != nil {
		return nil, err
	}

	result, err := funding.WindowYield(points, lookbackHours)
	if err != nil {
		return nil, err
	}
	result.Symbol = symbol
	result.LeftSymbol = fmt.Sprintf("%s:%s", e.left.Name(), symbol)
	result.RightSymbol = fmt.Sprintf("%s:%s", e.right.Name(), symbol)
	return result, nil
}

// rawPrediction is a per-symbol forecast before batch normalization.
type rawPrediction struct {
	window   *models.ArbitrageWindowResult
	stats    *funding.ForecastStats
	leftBps  float64
	rightBps float64
}

func (e *Engine) predictOne(ctx context.Context, symbol string) (*rawPrediction, error) {
	points, err := e.reconciledSeries(ctx, symbol, funding.ForecastLookbackHours)
	if err != nil {
		return nil, err
	}
	stats, err := funding.Forecast(points)
	if err != nil {
		return nil, err
	}
	window, err := funding.WindowYield(points, funding.DefaultLookbackHours)
	if err != nil {
		return nil, err
	}
	window.Symbol = symbol
	window.LeftSymbol = fmt.Sprintf("%s:%s", e.left.Name(), symbol)
	window.RightSymbol = fmt.Sprintf("%s:%s", e.right.Name(), symbol)

	return &rawPrediction{
		window:   window,
		stats:    stats,
		leftBps:  e.legSpreadBps(ctx, e.left, symbol),
		rightBps: e.legSpreadBps(ctx, e.right, symbol),
	}, nil
}

// legSpreadBps reads the leg's entry cost off the freshest book available,
// degrading to the configured fallback when no book can be read.
func (e *Engine) legSpreadBps(ctx context.Context, v venue.Venue, symbol string) float64 {
	if e.books != nil {
		if snapshot, ok := e.books.Latest(v.Name(), symbol); ok {
			return book.BidAskSpreadBps(snapshot, e.spreadFallbackBps)
		}
	}
	snapshot, err := v.OrderBook(ctx, symbol)
	if err != nil {
		log.Debug().Err(err).Str("venue", v.Name()).Str("symbol", symbol).
			Msg("book unavailable, using fallback spread")
		return e.spreadFallbackBps
	}
	return book.BidAskSpreadBps(snapshot, e.spreadFallbackBps)
}

// Prediction forecasts a single symbol. The min-max normalization runs over a
// population of one, so both normalized inputs sit at the midpoint.
func (e *Engine) Prediction(ctx context.Context, symbol string) (*models.PredictionResult, error) {
	raw, err := e.predictOne(ctx, symbol)
	if err != nil {
		return nil, err
	}
	scored := scorePredictions([]*rawPrediction{raw})
	return &scored[0], nil
}

// ArbitrageSnapshot computes realized yield for every common symbol through a
// bounded worker pool. Snapshots are cached per lookback; force recomputes.
func (e *Engine) ArbitrageSnapshot(ctx context.Context, lookbackHours int, force bool) (*ArbitrageSnapshot, error) {
	if lookbackHours <= 0 {
		lookbackHours = funding.DefaultLookbackHours
	}

	e.mu.RLock()
	cached := e.arbCache[lookbackHours]
	e.mu.RUnlock()
	if cached != nil && !force && time.Since(cached.ComputedAt) < e.snapshotTTL {
		return cached, nil
	}

	symbols, err := e.AvailableSymbols(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		entries  []models.ArbitrageWindowResult
		failures []models.SymbolFailure
	)
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(e.workers)
	for _, symbol := range symbols {
		grp.Go(func() error {
			result, err := e.WindowYield(grpCtx, symbol, lookbackHours)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, models.SymbolFailure{Symbol: symbol, Reason: err.Error()})
				return nil
			}
			entries = append(entries, *result)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AnnualizedDecimal > entries[j].AnnualizedDecimal
	})
	sortFailures(failures)

	snapshot := &ArbitrageSnapshot{
		LookbackHours: lookbackHours,
		Entries:       entries,
		Failures:      failures,
		ComputedAt:    time.Now().UTC(),
	}
	e.mu.Lock()
	e.arbCache[lookbackHours] = snapshot
	e.mu.Unlock()

	log.Info().
		Int("symbols", len(symbols)).
		Int("entries", len(entries)).
		Int("failures", len(failures)).
		Int("lookback_hours", lookbackHours).
		Msg("arbitrage snapshot computed")
	return snapshot, nil
}

// PredictionSnapshot forecasts every common symbol, then scores the batch
// against its own population so the normalization is meaningful.
func (e *Engine) PredictionSnapshot(ctx context.Context, force bool) (*PredictionSnapshot, error) {
	e.mu.RLock()
	cached := e.predictions
	e.mu.RUnlock()
	if cached != nil && !force && time.Since(cached.ComputedAt) < e.snapshotTTL {
		return cached, nil
	}

	symbols, err := e.AvailableSymbols(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		raws     []*rawPrediction
		failures []models.SymbolFailure
	)
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(e.workers)
	for _, symbol := range symbols {
		grp.Go(func() error {
			raw, err := e.predictOne(grpCtx, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, models.SymbolFailure{Symbol: symbol, Reason: err.Error()})
				return nil
			}
			raws = append(raws, raw)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	entries := scorePredictions(raws)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RecommendationScore > entries[j].RecommendationScore
	})
	sortFailures(failures)

	snapshot := &PredictionSnapshot{
		Entries:    entries,
		Failures:   failures,
		ComputedAt: time.Now().UTC(),
	}
	e.mu.Lock()
	e.predictions = snapshot
	e.mu.Unlock()

	log.Info().
		Int("symbols", len(symbols)).
		Int("entries", len(entries)).
		Int("failures", len(failures)).
		Msg("prediction snapshot computed")
	return snapshot, nil
}

// scorePredictions normalizes yield and volatility across the batch and
// applies the recommendation weights plus per-leg entry-cost acceptance.
func scorePredictions(raws []*rawPrediction) []models.PredictionResult {
	aprs := make([]float64, len(raws))
	volatilities := make([]float64, len(raws))
	for i, raw := range raws {
		aprs[i] = raw.window.AnnualizedDecimal
		volatilities[i] = raw.stats.SpreadVolatility24hPct
	}

	entries := make([]models.PredictionResult, 0, len(raws))
	for i, raw := range raws {
		yieldNorm := funding.MinMaxNormalize(aprs[i], aprs)
		volatilityNorm := funding.MinMaxNormalize(volatilities[i], volatilities)
		score := funding.Score(yieldNorm, volatilityNorm, raw.leftBps, raw.rightBps)
		combined := raw.leftBps + raw.rightBps

		entries = append(entries, models.PredictionResult{
			ArbitrageWindowResult:   *raw.window,
			PredictedLeft24h:        raw.stats.PredictedLeft24h,
			PredictedRight24h:       raw.stats.PredictedRight24h,
			PredictedSpread24h:      raw.stats.PredictedSpread24h,
			SpreadVolatility24hPct:  raw.stats.SpreadVolatility24hPct,
			LeftBidAskSpreadBps:     raw.leftBps,
			RightBidAskSpreadBps:    raw.rightBps,
			CombinedBidAskSpreadBps: combined,
			RecommendationScore:     score,
			EntryTimingAdvice:       funding.Advice(score, combined, raw.stats.SpreadVolatility24hPct),
		})
	}
	return entries
}

func sortFailures(failures []models.SymbolFailure) {
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Symbol < failures[j].Symbol
	})
}

// fetchPair runs two venue calls concurrently and joins them back as an
// independent result-or-error per side; one slow venue never hides the
// other's answer.
func fetchPair[L, R any](ctx context.Context, fetchLeft func(context.Context) (L, error), fetchRight func(context.Context) (R, error)) (L, R, error) {
	type leftOut struct {
		value L
		err   error
	}
	type rightOut struct {
		value R
		err   error
	}

	leftCh := make(chan leftOut, 1)
	rightCh := make(chan rightOut, 1)
	go func() {
		value, err := fetchLeft(ctx)
		leftCh <- leftOut{value, err}
	}()
	go func() {
		value, err := fetchRight(ctx)
		rightCh <- rightOut{value, err}
	}()

	left := <-leftCh
	right := <-rightCh
	if left.err != nil {
		return left.value, right.value, fmt.Errorf("left venue: %w", left.err)
	}
	if right.err != nil {
		return left.value, right.value, fmt.Errorf("right venue: %w", right.err)
	}
	return left.value, right.value, nil
}
